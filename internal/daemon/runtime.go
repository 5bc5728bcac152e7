package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ingest"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/source/gateway"
	"github.com/mumblechat/mumble/internal/status"
	msync "github.com/mumblechat/mumble/internal/sync"
	"go.uber.org/zap"
)

var errStopped = errors.New("daemon is shutting down")

// Runtime owns the account connection: live ingestion, the polling backstop
// and the session state around them.
type Runtime struct {
	machine  *status.Machine
	cache    *mirror.Cache
	coord    *msync.Coordinator
	poller   *msync.Poller
	ingestor *ingest.Ingestor
	bus      *bus.Bus
	logger   *zap.Logger

	// mu serializes Connect and Disconnect.
	mu        sync.Mutex
	connected atomic.Bool
	base      context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewRuntime creates a disconnected runtime.
func NewRuntime(machine *status.Machine, cache *mirror.Cache, coord *msync.Coordinator, poller *msync.Poller, ingestor *ingest.Ingestor, b *bus.Bus, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runtime{
		machine:  machine,
		cache:    cache,
		coord:    coord,
		poller:   poller,
		ingestor: ingestor,
		bus:      b,
		logger:   logger,
		base:     base,
		cancel:   cancel,
	}
}

// Start begins tracking sync health: a failed conversation pull degrades a
// ready session and a successful one restores it.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	r.done = make(chan struct{})
	ch, unsub := r.bus.Subscribe("sync.", 64)
	go func(done chan struct{}) {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.observe(evt)
			case <-r.base.Done():
				return
			}
		}
	}(r.done)
}

func (r *Runtime) observe(evt bus.Event) {
	p, ok := evt.Payload.(msync.Progress)
	if !ok || p.Scope != msync.ScopeConversations || !r.connected.Load() {
		return
	}
	switch evt.Kind {
	case bus.KindSyncFailed:
		if r.machine.Current() == status.Ready {
			_ = r.machine.Transition(status.Degraded)
		}
	case bus.KindSyncCompleted:
		if r.machine.Current() == status.Degraded && r.ingestor.Running() {
			_ = r.machine.Transition(status.Ready)
		}
	}
}

// Live reports whether the live streams are open.
func (r *Runtime) Live() bool {
	return r.ingestor.Running()
}

// Connected reports whether the account is connected.
func (r *Runtime) Connected() bool {
	return r.connected.Load()
}

// Connect opens the live streams, runs a full sync of conversations and
// their messages and starts polling. A failed sync leaves the session
// DEGRADED with polling retrying; a rejected credential disconnects again.
func (r *Runtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected.Load() {
		return nil
	}
	if r.base.Err() != nil {
		return errStopped
	}
	if err := r.machine.Transition(status.Connecting); err != nil {
		return err
	}

	if err := r.ingestor.Start(r.base); err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			_ = r.machine.Transition(status.Unauthenticated)
			return err
		}
		r.logger.Warn("live streams unavailable, relying on polling", zap.Error(err))
	}
	_ = r.machine.Transition(status.Syncing)

	report, err := r.coord.SyncAll(ctx)
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		r.ingestor.Stop()
		_ = r.machine.Transition(status.Unauthenticated)
		return err
	case err != nil:
		r.logger.Warn("initial sync failed", zap.Error(err))
		_ = r.machine.Transition(status.Degraded)
	case !r.ingestor.Running():
		_ = r.machine.Transition(status.Degraded)
	default:
		_ = r.machine.Transition(status.Ready)
	}
	r.logger.Info("connected",
		zap.Int("conversations", r.cache.Len()),
		zap.Int("fetched", report.Conversations.Fetched),
		zap.String("status", string(r.machine.Current())))

	r.connected.Store(true)
	r.poller.Start(r.base)
	return nil
}

// Disconnect stops ingestion and polling, clears the mirror and its cursor,
// and moves the session to UNAUTHENTICATED. Pulls still in flight are
// discarded when they complete.
func (r *Runtime) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected.Load() {
		if r.machine.Current() == status.Booting {
			return r.machine.Transition(status.Unauthenticated)
		}
		return nil
	}
	r.connected.Store(false)
	if err := r.machine.Transition(status.Unauthenticated); err != nil {
		r.logger.Warn("unexpected state on disconnect", zap.Error(err))
	}
	r.poller.Stop()
	r.ingestor.Stop()
	r.cache.Reset()
	r.logger.Info("disconnected")
	return nil
}

// Stop tears the runtime down for daemon shutdown. The mirror is kept.
func (r *Runtime) Stop() {
	r.mu.Lock()
	r.connected.Store(false)
	r.cancel()
	done := r.done
	r.mu.Unlock()

	r.poller.Stop()
	r.ingestor.Stop()
	r.coord.Close()
	if done != nil {
		<-done
	}
}
