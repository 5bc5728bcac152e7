// Package outbox persists outgoing messages and delivers them through the
// message source. Delivered messages are appended to the mirror; the live
// stream echo of the same message is then a no-op.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is how many times an entry is tried before it is failed.
const DefaultMaxAttempts = 3

// MessageSender delivers one message to the network.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID string, content model.Content) (model.Message, error)
}

// Result is the payload of outbox.sent and outbox.failed events.
type Result struct {
	ClientMsgID    string
	ConversationID string
	ServerMsgID    string
	Err            string
	// Final is set on failures that will not be retried.
	Final bool
}

// Sender drains the outbox and sends messages via the message source.
type Sender struct {
	db          *store.DB
	sender      MessageSender
	cache       *mirror.Cache
	bus         *bus.Bus
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int

	kick   chan struct{}
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender MessageSender, cache *mirror.Cache, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:          db,
		sender:      sender,
		cache:       cache,
		bus:         b,
		logger:      logger,
		interval:    500 * time.Millisecond,
		maxAttempts: DefaultMaxAttempts,
		kick:        make(chan struct{}, 1),
	}
}

// Queue stores a message for delivery and returns its client message id.
// The conversation must be mirrored.
func (s *Sender) Queue(conversationID string, content model.Content) (string, error) {
	id := ident.Canonical(conversationID)
	if _, ok := s.cache.Conversation(id); !ok {
		return "", mirror.ErrUnknownConversation
	}
	if content.Type == "" {
		content.Type = model.ContentText
	}
	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, id, string(content.Type), content.Payload); err != nil {
		return "", fmt.Errorf("queue outbox: %w", err)
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
	return clientMsgID, nil
}

// Start begins polling the outbox for pending messages. Entries left in
// 'sending' by a previous run are queued again first.
func (s *Sender) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if n, err := s.db.RequeueSending(); err != nil {
		s.logger.Error("failed to requeue outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted outbox entries", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sender) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.kick:
		case <-ctx.Done():
			return
		}
		s.processPending(ctx)
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(50)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.deliver(ctx, entry)
	}
}

func (s *Sender) deliver(ctx context.Context, entry store.OutboxEntry) {
	log := s.logger.With(zap.String("client_msg_id", entry.ClientMsgID), zap.String("conversation_id", entry.ConversationID))
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		log.Error("failed to mark sending", zap.Error(err))
		return
	}

	content := model.Content{Type: model.ParseContentType(entry.ContentType), Payload: entry.Body}
	msg, err := s.sender.SendMessage(ctx, entry.ConversationID, content)
	if err != nil && ctx.Err() != nil {
		// Interrupted by Stop: not a delivery failure.
		log.Info("send interrupted by shutdown", zap.Error(err))
		if rerr := s.db.ReleaseOutboxSending(entry.ClientMsgID); rerr != nil {
			log.Error("failed to release outbox entry", zap.Error(rerr))
		}
		return
	}
	if err != nil {
		log.Error("failed to send message", zap.Error(err), zap.Int("attempt", entry.Attempts+1))
		if merr := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error(), s.maxAttempts); merr != nil {
			log.Error("failed to mark failed", zap.Error(merr))
		}
		s.bus.Emit(bus.KindOutboxFailed, Result{
			ClientMsgID:    entry.ClientMsgID,
			ConversationID: entry.ConversationID,
			Err:            err.Error(),
			Final:          entry.Attempts+1 >= s.maxAttempts,
		})
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
		log.Error("failed to mark sent", zap.Error(err))
	}
	s.cache.AppendMessage(entry.ConversationID, msg)

	log.Info("message sent", zap.String("server_msg_id", msg.ID))
	s.bus.Emit(bus.KindOutboxSent, Result{
		ClientMsgID:    entry.ClientMsgID,
		ConversationID: entry.ConversationID,
		ServerMsgID:    msg.ID,
	})
}
