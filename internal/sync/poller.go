package sync

import (
	"context"
	"errors"
	"slices"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"go.uber.org/zap"
)

// Poller periodically re-runs conversation and watched-message pulls as a
// backstop for live streams. Failing passes back off exponentially.
type Poller struct {
	coord      *Coordinator
	interval   time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger

	mu      gosync.Mutex
	watched map[string]int
	kick    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller. interval is the delay between healthy passes;
// maxBackoff caps the delay after consecutive failures.
func NewPoller(coord *Coordinator, interval, maxBackoff time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &Poller{
		coord:      coord,
		interval:   interval,
		maxBackoff: maxBackoff,
		logger:     logger,
		watched:    make(map[string]int),
		kick:       make(chan struct{}, 1),
	}
}

// Watch adds a conversation to the set whose messages are pulled on every
// pass. The returned function removes it again and is safe to call twice.
func (p *Poller) Watch(conversationID string) (func(), error) {
	id := ident.Canonical(conversationID)
	if _, ok := p.coord.cache.Conversation(id); !ok {
		return nil, mirror.ErrUnknownConversation
	}
	p.mu.Lock()
	p.watched[id]++
	p.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.watched[id]--; p.watched[id] <= 0 {
				delete(p.watched, id)
			}
			p.mu.Unlock()
		})
	}, nil
}

// Watched returns the watched conversation ids, sorted.
func (p *Poller) Watched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.watched))
	for id := range p.watched {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Kick requests a pass as soon as possible.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Start begins polling. The first pass runs immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	bo.MaxInterval = p.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	go func() {
		defer close(done)
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			case <-p.kick:
				timer.Stop()
			}

			delay := p.interval
			if err := p.pass(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				delay = bo.NextBackOff()
				p.logger.Warn("poll failed, backing off", zap.Duration("delay", delay), zap.Error(err))
			} else {
				bo.Reset()
			}
			timer.Reset(delay)
		}
	}()
}

// Stop cancels polling and waits for an in-progress pass to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) pass(ctx context.Context) error {
	if _, err := p.coord.SyncConversations(ctx); err != nil {
		return err
	}
	var errs []error
	for _, id := range p.Watched() {
		if _, err := p.coord.SyncMessages(ctx, id); err != nil && !errors.Is(err, mirror.ErrUnknownConversation) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
