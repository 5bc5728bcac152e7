// Package notify turns newly mirrored messages into local notifications.
package notify

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const previewLen = 100

// Namer resolves display names.
type Namer interface {
	ConversationName(c model.Conversation) string
	MemberName(memberID string) string
}

// Muter reports muted conversations.
type Muter interface {
	IsMuted(conversationID string) (bool, error)
}

// Notification is the payload of notify.message events.
type Notification struct {
	ConversationID   string
	ConversationName string
	MessageID        string
	SenderID         string
	SenderName       string
	Preview          string
	SentAt           int64
}

// Options configures a Notifier.
type Options struct {
	SelfID    string
	PerSecond int
	Cache     *mirror.Cache
	Names     Namer
	Muted     Muter
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Notifier publishes a notification for every incoming message that is not
// from this inbox, not in a focused or muted conversation, and not older than
// the notifier itself.
type Notifier struct {
	selfID string
	limit  ratelimit.Limiter
	cache  *mirror.Cache
	names  Namer
	muted  Muter
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	focused map[string]int
	since   int64
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a notifier.
func New(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	perSecond := opts.PerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Notifier{
		selfID:  ident.Canonical(opts.SelfID),
		limit:   ratelimit.New(perSecond),
		cache:   opts.Cache,
		names:   opts.Names,
		muted:   opts.Muted,
		bus:     opts.Bus,
		logger:  logger,
		focused: make(map[string]int),
	}
}

// Focus suppresses notifications for a conversation while a client has it
// open. The returned function ends the focus and is safe to call twice.
func (n *Notifier) Focus(conversationID string) func() {
	id := ident.Canonical(conversationID)
	n.mu.Lock()
	n.focused[id]++
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			if n.focused[id]--; n.focused[id] <= 0 {
				delete(n.focused, id)
			}
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) isFocused(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.focused[id] > 0
}

// Start subscribes to mirror message events.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	n.since = time.Now().UnixNano()
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	ch, unsub := n.bus.Subscribe(bus.KindMessageAppended, 256)

	go func(done chan struct{}) {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if p, ok := evt.Payload.(mirror.MessageAppended); ok {
					n.handle(p)
				}
			case <-ctx.Done():
				return
			}
		}
	}(n.done)
}

// Stop unsubscribes and waits for the loop to exit.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (n *Notifier) handle(p mirror.MessageAppended) {
	msg := p.Message
	if msg.SenderID != "" && msg.SenderID == n.selfID {
		return
	}
	if msg.SentAt < n.since {
		return
	}
	if n.isFocused(p.ConversationID) {
		return
	}
	if n.muted != nil {
		muted, err := n.muted.IsMuted(p.ConversationID)
		if err != nil {
			n.logger.Warn("mute lookup failed", zap.String("conversation_id", p.ConversationID), zap.Error(err))
		} else if muted {
			return
		}
	}
	n.limit.Take()
	n.bus.Emit(bus.KindNotifyMessage, n.build(p))
}

func (n *Notifier) build(p mirror.MessageAppended) Notification {
	note := Notification{
		ConversationID:   p.ConversationID,
		ConversationName: p.ConversationID,
		MessageID:        p.Message.ID,
		SenderID:         p.Message.SenderID,
		SenderName:       p.Message.SenderID,
		Preview:          Preview(p.Message.Content),
		SentAt:           p.Message.SentAt,
	}
	if n.names != nil {
		if conv, ok := n.cache.Conversation(p.ConversationID); ok {
			note.ConversationName = n.names.ConversationName(conv)
		}
		note.SenderName = n.names.MemberName(p.Message.SenderID)
	}
	return note
}

// Preview renders message content as a single short line.
func Preview(c model.Content) string {
	if c.Type != model.ContentText && c.Type != model.ContentReply {
		return "[" + string(c.Type) + "]"
	}
	s := string(c.Payload)
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	r := []rune(s)
	return string(r[:previewLen]) + "…"
}
