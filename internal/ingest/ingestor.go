// Package ingest applies live stream events from the message source to the
// mirror. Only additive cache operations are used here; authoritative
// replacement is left to pulls.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
	msync "github.com/mumblechat/mumble/internal/sync"
	"go.uber.org/zap"
)

// Recoverer pulls a conversation's messages. Used when a message arrives for
// a conversation the mirror does not know yet.
type Recoverer interface {
	SyncMessages(ctx context.Context, conversationID string) (msync.Result, error)
}

// Ingestor consumes the conversation and message streams and applies events
// in delivery order from a single goroutine.
type Ingestor struct {
	src       source.Source
	cache     *mirror.Cache
	recoverer Recoverer
	logger    *zap.Logger

	mu        sync.Mutex
	running   bool
	stopped   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	disposers []source.Disposer
	recovers  sync.WaitGroup
}

// New creates an ingestor. recoverer may be nil, in which case messages for
// unknown conversations are only stubbed.
func New(src source.Source, cache *mirror.Cache, recoverer Recoverer, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		src:       src,
		cache:     cache,
		recoverer: recoverer,
		logger:    logger,
	}
}

// Start opens both streams. Calling Start on a running ingestor is a no-op.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan model.Event, 256)
	stopped := make(chan struct{})
	enqueue := func(evt model.Event) {
		select {
		case events <- evt:
		case <-stopped:
		}
	}

	disposeConvs, err := i.src.StreamConversations(ctx, enqueue)
	if err != nil {
		cancel()
		return fmt.Errorf("stream conversations: %w", err)
	}
	disposeMsgs, err := i.src.StreamMessages(ctx, enqueue)
	if err != nil {
		disposeConvs()
		cancel()
		return fmt.Errorf("stream messages: %w", err)
	}

	i.running = true
	i.stopped = stopped
	i.done = make(chan struct{})
	i.cancel = cancel
	i.disposers = []source.Disposer{disposeConvs, disposeMsgs}

	go i.loop(ctx, events, stopped, i.done)
	i.logger.Info("live ingestion started")
	return nil
}

func (i *Ingestor) loop(ctx context.Context, events <-chan model.Event, stopped, done chan struct{}) {
	defer close(done)
	for {
		select {
		case evt := <-events:
			i.apply(ctx, evt)
		case <-stopped:
			return
		}
	}
}

// Stop disposes both streams. Events delivered afterwards are ignored.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	disposers := i.disposers
	i.disposers = nil
	close(i.stopped)
	i.cancel()
	done := i.done
	i.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	<-done
	i.recovers.Wait()
	i.logger.Info("live ingestion stopped")
}

// Running reports whether the streams are open.
func (i *Ingestor) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

func (i *Ingestor) apply(ctx context.Context, evt model.Event) {
	switch e := evt.(type) {
	case model.ConversationEvent:
		if !e.Conversation.Kind.Known() {
			i.logger.Debug("dropping conversation of unsupported kind",
				zap.String("conversation_id", e.Conversation.ID),
				zap.String("kind", string(e.Conversation.Kind)))
			return
		}
		i.cache.UpsertConversation(e.Conversation)
		i.cache.MergeMembers(e.Conversation.ID, e.Members)

	case model.MessageEvent:
		convID := ident.Canonical(e.Message.ConversationID)
		if convID == "" {
			i.logger.Warn("dropping message without conversation", zap.String("msg_id", e.Message.ID))
			return
		}
		if _, ok := i.cache.Conversation(convID); ok {
			i.cache.AppendMessage(convID, e.Message)
			return
		}
		// Unknown conversation: keep a stub and let a pull bring the message in.
		i.cache.UpsertConversation(model.Conversation{ID: convID})
		i.logger.Info("message for unknown conversation, recovering by pull",
			zap.String("conversation_id", convID),
			zap.String("msg_id", e.Message.ID))
		i.requestRecovery(ctx, convID)

	case model.MembershipEvent:
		if !i.cache.MergeMembers(e.ConversationID, e.Added) {
			i.logger.Debug("membership update for unknown conversation", zap.String("conversation_id", e.ConversationID))
		}

	default:
		i.logger.Debug("ignoring unknown event", zap.String("type", fmt.Sprintf("%T", evt)))
	}
}

func (i *Ingestor) requestRecovery(ctx context.Context, convID string) {
	if i.recoverer == nil {
		return
	}
	i.recovers.Add(1)
	go func() {
		defer i.recovers.Done()
		if _, err := i.recoverer.SyncMessages(ctx, convID); err != nil && ctx.Err() == nil {
			i.logger.Warn("recovery pull failed", zap.String("conversation_id", convID), zap.Error(err))
		}
	}()
}
