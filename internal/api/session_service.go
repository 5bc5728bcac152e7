package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/notify"
	"github.com/mumblechat/mumble/internal/outbox"
	"github.com/mumblechat/mumble/internal/status"
	msync "github.com/mumblechat/mumble/internal/sync"
)

// Connector starts and stops the account connection.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Live() bool
}

// SessionInfo describes the daemon's session.
type SessionInfo struct {
	Name   string
	SelfID string
	Source string
}

// SessionService implements mumble.v1.SessionService.
type SessionService struct {
	info      SessionInfo
	startedAt time.Time
	machine   *status.Machine
	cache     *mirror.Cache
	conn      Connector
	bus       *bus.Bus
}

// NewSessionService creates a new session service.
func NewSessionService(info SessionInfo, machine *status.Machine, cache *mirror.Cache, conn Connector, b *bus.Bus) *SessionService {
	return &SessionService{
		info:      info,
		startedAt: time.Now(),
		machine:   machine,
		cache:     cache,
		conn:      conn,
		bus:       b,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	resp := &StatusResponse{
		Session:  s.info.Name,
		Status:   string(s.machine.Current()),
		SelfID:   s.info.SelfID,
		Source:   s.info.Source,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if s.cache != nil {
		resp.Conversations = s.cache.Len()
	}
	if s.conn != nil {
		resp.Live = s.conn.Live()
	}
	resp.DroppedEvents = s.bus.Dropped()
	return resp, nil
}

func (s *SessionService) Connect(ctx context.Context, _ *ConnectRequest) (*ConnectionResponse, error) {
	if s.conn == nil {
		return nil, errUnavailable("connector not initialized")
	}
	if err := s.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return &ConnectionResponse{Status: string(s.machine.Current())}, nil
}

func (s *SessionService) Disconnect(ctx context.Context, _ *DisconnectRequest) (*ConnectionResponse, error) {
	if s.conn == nil {
		return nil, errUnavailable("connector not initialized")
	}
	if err := s.conn.Disconnect(ctx); err != nil {
		return nil, err
	}
	return &ConnectionResponse{Status: string(s.machine.Current())}, nil
}

// WatchEvents streams bus events until the client goes away.
func (s *SessionService) WatchEvents(req *WatchEventsRequest, stream Stream) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			if !matchesPrefix(evt.Kind, req.Prefixes) {
				continue
			}
			if err := stream.Send(EventEnvelope{
				EventID:      uuid.NewString(),
				Session:      s.info.Name,
				OccurredAtMs: evt.Timestamp.UnixMilli(),
				Kind:         evt.Kind,
				Payload:      eventPayload(evt),
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func matchesPrefix(kind string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}

// eventPayload converts a bus payload to its client representation.
func eventPayload(evt bus.Event) any {
	switch p := evt.Payload.(type) {
	case nil:
		return nil
	case mirror.MessageAppended:
		return messageFrom(p.Message, "")
	case mirror.ConversationChange:
		return map[string]any{"conversation_id": p.ConversationID, "created": p.Created}
	case mirror.MembersChange:
		return map[string]any{"conversation_id": p.ConversationID, "replaced": p.Replaced, "count": p.Count}
	case msync.Progress:
		return map[string]any{"scope": p.Scope, "full": p.Full, "error": p.Err}
	case status.StatusChange:
		return map[string]any{"from": string(p.From), "to": string(p.To)}
	case outbox.Result:
		return map[string]any{
			"client_msg_id":   p.ClientMsgID,
			"conversation_id": p.ConversationID,
			"server_msg_id":   p.ServerMsgID,
			"error":           p.Err,
			"final":           p.Final,
		}
	case notify.Notification:
		return map[string]any{
			"conversation_id":   p.ConversationID,
			"conversation_name": p.ConversationName,
			"message_id":        p.MessageID,
			"sender_id":         p.SenderID,
			"sender_name":       p.SenderName,
			"preview":           p.Preview,
		}
	default:
		return p
	}
}
