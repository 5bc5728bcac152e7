package api

import (
	"context"
	"strings"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/store"
	"github.com/mumblechat/mumble/internal/views"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Creator creates conversations at the source and mirrors them.
type Creator interface {
	CreateDirect(ctx context.Context, memberID string) (model.Conversation, error)
	CreateGroup(ctx context.Context, memberIDs []string, meta model.Metadata) (model.Conversation, error)
}

// Queuer accepts outgoing messages.
type Queuer interface {
	Queue(conversationID string, content model.Content) (string, error)
}

// Focuser suppresses notifications for an open conversation.
type Focuser interface {
	Focus(conversationID string) func()
}

// Watcher adds a conversation to the polling backstop.
type Watcher interface {
	Watch(conversationID string) (func(), error)
}

// ConversationOptions holds the dependencies of a ConversationService.
// Focus and Watch may be nil.
type ConversationOptions struct {
	Views   *views.Views
	Cache   *mirror.Cache
	DB      *store.DB
	Creator Creator
	Outbox  Queuer
	Focus   Focuser
	Watch   Watcher
	Bus     *bus.Bus
}

// ConversationService implements mumble.v1.ConversationService.
type ConversationService struct {
	opts ConversationOptions
}

// NewConversationService creates a new conversation service.
func NewConversationService(opts ConversationOptions) *ConversationService {
	return &ConversationService{opts: opts}
}

func (s *ConversationService) ListConversations(_ context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	var filter []views.Predicate
	if req.Query != "" {
		filter = append(filter, views.MatchText(req.Query))
	}
	if req.Kind != "" {
		kind := model.ParseKind(req.Kind)
		if !kind.Known() {
			return nil, errInvalid("unknown conversation kind %q", req.Kind)
		}
		filter = append(filter, views.OfKind(kind))
	}

	summaries := s.opts.Views.Summaries(views.And(filter...))
	out := make([]Conversation, 0, len(summaries))
	for _, sum := range summaries {
		c := summaryFrom(sum)
		c.Muted = s.muted(c.ID)
		out = append(out, c)
	}
	return &ListConversationsResponse{Conversations: out}, nil
}

func (s *ConversationService) GetConversation(_ context.Context, req *ConversationRequest) (*Conversation, error) {
	conv, ok := s.opts.Cache.Conversation(req.ID)
	if !ok {
		return nil, mirror.ErrUnknownConversation
	}
	out := conversationFrom(conv)
	out.DisplayName = s.opts.Views.ConversationName(conv)
	out.MemberCount = s.opts.Views.GetMemberCount(conv.ID)
	for _, m := range s.opts.Cache.Members(conv.ID) {
		out.Members = append(out.Members, m.ID)
	}
	if last, ok := s.opts.Cache.LastMessage(conv.ID); ok {
		m := messageFrom(last, s.opts.Views.MemberName(last.SenderID))
		out.LastMessage = &m
	}
	out.Muted = s.muted(conv.ID)
	return &out, nil
}

// ListMessages returns a conversation's messages oldest first. Unknown
// conversations yield an empty list.
func (s *ConversationService) ListMessages(_ context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	msgs := s.opts.Views.GetMessages(req.ID)
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[len(msgs)-req.Limit:]
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFrom(m, s.opts.Views.MemberName(m.SenderID)))
	}
	return &MessagesResponse{Messages: out}, nil
}

func (s *ConversationService) SendText(_ context.Context, req *SendRequest) (*SendResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errInvalid("empty message")
	}
	id, err := s.opts.Outbox.Queue(req.ConversationID, model.Text(req.Text))
	if err != nil {
		return nil, err
	}
	return &SendResponse{ClientMsgID: id}, nil
}

func (s *ConversationService) GetOutboxEntry(_ context.Context, req *OutboxRequest) (*OutboxEntry, error) {
	e, err := s.opts.DB.GetOutbox(req.ClientMsgID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "outbox entry %q not found", req.ClientMsgID)
	}
	out := outboxFrom(e)
	return &out, nil
}

func (s *ConversationService) CreateDirect(ctx context.Context, req *CreateDirectRequest) (*Conversation, error) {
	conv, err := s.opts.Creator.CreateDirect(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, &ConversationRequest{ID: conv.ID})
}

func (s *ConversationService) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*Conversation, error) {
	conv, err := s.opts.Creator.CreateGroup(ctx, req.MemberIDs, model.Metadata{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, &ConversationRequest{ID: conv.ID})
}

// RemoveConversation drops a conversation from the local mirror only.
func (s *ConversationService) RemoveConversation(_ context.Context, req *ConversationRequest) (*RemoveResponse, error) {
	return &RemoveResponse{Removed: s.opts.Cache.RemoveConversation(req.ID)}, nil
}

func (s *ConversationService) SetMuted(_ context.Context, req *MuteRequest) (*MuteResponse, error) {
	id := ident.Canonical(req.ID)
	if _, ok := s.opts.Cache.Conversation(id); !ok {
		return nil, mirror.ErrUnknownConversation
	}
	var err error
	if req.Muted {
		err = s.opts.DB.Mute(id)
	} else {
		err = s.opts.DB.Unmute(id)
	}
	if err != nil {
		return nil, err
	}
	return &MuteResponse{Muted: req.Muted}, nil
}

// Focus marks a conversation as open for as long as the stream lives: its
// notifications are suppressed, its messages are polled, and every newly
// mirrored message is sent to the client.
func (s *ConversationService) Focus(req *ConversationRequest, stream Stream) error {
	id := ident.Canonical(req.ID)
	if _, ok := s.opts.Cache.Conversation(id); !ok {
		return mirror.ErrUnknownConversation
	}

	ch, unsub := s.opts.Bus.Subscribe(bus.KindMessageAppended, 256)
	defer unsub()
	if s.opts.Focus != nil {
		defer s.opts.Focus.Focus(id)()
	}
	if s.opts.Watch != nil {
		unwatch, err := s.opts.Watch.Watch(id)
		if err != nil {
			return err
		}
		defer unwatch()
	}

	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			p, ok := evt.Payload.(mirror.MessageAppended)
			if !ok || p.ConversationID != id {
				continue
			}
			if err := stream.Send(messageFrom(p.Message, s.opts.Views.MemberName(p.Message.SenderID))); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *ConversationService) muted(id string) bool {
	if s.opts.DB == nil {
		return false
	}
	m, err := s.opts.DB.IsMuted(id)
	return err == nil && m
}
