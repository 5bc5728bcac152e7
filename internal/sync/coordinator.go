// Package sync pulls conversations and messages from the message source into
// the mirror. Live updates are handled by package ingest; this package covers
// full and incremental pulls plus the polling backstop.
package sync

import (
	"context"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/ident"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ScopeConversations is the scope of conversation-list pulls.
const ScopeConversations = "conversations"

const messagesPrefix = "messages:"

// MessagesScope returns the scope of message pulls for one conversation.
func MessagesScope(conversationID string) string {
	return messagesPrefix + ident.Canonical(conversationID)
}

// State is the sync state of a scope.
type State string

const (
	Idle    State = "IDLE"
	Syncing State = "SYNCING"
)

// Authenticator reports whether an account identity is present.
type Authenticator interface {
	Authenticated() bool
}

// Result describes a completed pull.
type Result struct {
	Scope   string
	Full    bool
	Fetched int
	// Inserted counts newly mirrored messages (message scopes only).
	Inserted int
	Cursor   model.Cursor
	// Discarded is set when the mirror was reset while the pull was in flight.
	Discarded bool
	// Shared is set when the caller joined a pull started by someone else.
	Shared   bool
	Duration time.Duration
}

// Report is the outcome of SyncAll.
type Report struct {
	Conversations Result
	Messages      []Result
}

// Progress is the payload of sync.started, sync.completed and sync.failed.
type Progress struct {
	Scope string
	Full  bool
	Err   string
}

// Options configures a Coordinator.
type Options struct {
	Source source.Source
	Cache  *mirror.Cache
	Auth   Authenticator
	Bus    *bus.Bus
	Logger *zap.Logger
	// Workers bounds concurrent message pulls in SyncAll.
	Workers int
}

// Coordinator runs pulls against the source. At most one pull per scope is in
// flight; overlapping callers share its result.
type Coordinator struct {
	src     source.Source
	cache   *mirror.Cache
	auth    Authenticator
	bus     *bus.Bus
	logger  *zap.Logger
	workers int

	group  singleflight.Group
	base   context.Context
	cancel context.CancelFunc

	mu     gosync.Mutex
	active map[string]int
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		src:     opts.Source,
		cache:   opts.Cache,
		auth:    opts.Auth,
		bus:     opts.Bus,
		logger:  logger,
		workers: workers,
		base:    base,
		cancel:  cancel,
		active:  make(map[string]int),
	}
}

// Close aborts every in-flight pull.
func (c *Coordinator) Close() {
	c.cancel()
}

// State returns the state of a scope.
func (c *Coordinator) State(scope string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[scope] > 0 {
		return Syncing
	}
	return Idle
}

// Active returns the scopes with a pull in flight.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.active))
	for scope := range c.active {
		out = append(out, scope)
	}
	return out
}

func (c *Coordinator) setActive(scope string, on bool) {
	c.mu.Lock()
	if on {
		c.active[scope]++
	} else if c.active[scope]--; c.active[scope] <= 0 {
		delete(c.active, scope)
	}
	c.mu.Unlock()
}

// run coalesces pulls on scope within one cache generation. A caller arriving
// after a Reset never joins a pull started before it, since that pull's
// result will be discarded. The pull runs on the coordinator's context so one
// caller giving up does not fail the others.
func (c *Coordinator) run(ctx context.Context, scope string, pull func(context.Context, uint64) (Result, error)) (Result, error) {
	if c.auth != nil && !c.auth.Authenticated() {
		return Result{Scope: scope}, ErrUnauthenticated
	}
	gen := c.cache.Generation()
	key := scope + "@" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		c.setActive(scope, true)
		defer c.setActive(scope, false)
		start := time.Now()
		res, err := pull(c.base, gen)
		res.Duration = time.Since(start)
		return res, err
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(Result)
		res.Shared = r.Shared
		return res, r.Err
	case <-ctx.Done():
		return Result{Scope: scope}, ctx.Err()
	}
}

// SyncConversations pulls the conversation list. The pull is full when no
// cursor is set or the mirror is empty, and incremental from the cursor
// otherwise. Members of every returned conversation are replaced.
func (c *Coordinator) SyncConversations(ctx context.Context) (Result, error) {
	return c.run(ctx, ScopeConversations, c.pullConversations)
}

func (c *Coordinator) pullConversations(ctx context.Context, gen uint64) (Result, error) {
	cur := c.cache.Cursor()
	res := Result{Scope: ScopeConversations, Full: !cur.Set || c.cache.Len() == 0}

	var opts source.ListOptions
	if !res.Full {
		opts.CreatedAfter = cur.LastCreatedAfter
	}
	c.bus.Emit(bus.KindSyncStarted, Progress{Scope: res.Scope, Full: res.Full})

	remote, err := c.src.ListConversations(ctx, opts)
	if err != nil {
		return res, c.fail(res, err)
	}
	res.Fetched = len(remote)

	next, ok := c.cache.ApplyPull(gen, remote)
	res.Cursor = next
	res.Discarded = !ok
	if !ok {
		c.logger.Info("discarding conversation pull started before reset")
	}
	c.complete(res)
	return res, nil
}

// SyncMessages pulls every message of one conversation and appends the ones
// not yet mirrored. The conversation must already be in the mirror.
func (c *Coordinator) SyncMessages(ctx context.Context, conversationID string) (Result, error) {
	id := ident.Canonical(conversationID)
	if _, ok := c.cache.Conversation(id); !ok {
		return Result{Scope: MessagesScope(id)}, mirror.ErrUnknownConversation
	}
	return c.run(ctx, MessagesScope(id), func(ctx context.Context, gen uint64) (Result, error) {
		return c.pullMessages(ctx, gen, id)
	})
}

func (c *Coordinator) pullMessages(ctx context.Context, gen uint64, id string) (Result, error) {
	res := Result{Scope: MessagesScope(id), Full: true}
	c.bus.Emit(bus.KindSyncStarted, Progress{Scope: res.Scope, Full: true})

	msgs, err := c.src.FetchMessages(ctx, id)
	if err != nil {
		return res, c.fail(res, err)
	}
	res.Fetched = len(msgs)

	n, ok := c.cache.ApplyMessages(gen, id, msgs)
	res.Inserted = n
	res.Discarded = !ok
	c.complete(res)
	return res, nil
}

// SyncAll pulls the conversation list and then the messages of every mirrored
// conversation with bounded parallelism. A failed message pull does not stop
// the others; the first failure is returned.
func (c *Coordinator) SyncAll(ctx context.Context) (Report, error) {
	var report Report
	conv, err := c.SyncConversations(ctx)
	report.Conversations = conv
	if err != nil {
		return report, err
	}

	convs := c.cache.Conversations()
	results := make([]Result, len(convs))
	errs := make([]error, len(convs))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, cv := range convs {
		i, cv := i, cv
		g.Go(func() error {
			results[i], errs[i] = c.SyncMessages(ctx, cv.ID)
			return nil
		})
	}
	_ = g.Wait()

	report.Messages = results
	for _, err := range errs {
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (c *Coordinator) fail(res Result, err error) error {
	serr := &SyncError{Scope: res.Scope, Full: res.Full, Err: err}
	c.logger.Warn("sync failed", zap.String("scope", res.Scope), zap.Bool("full", res.Full), zap.Error(err))
	c.bus.Emit(bus.KindSyncFailed, Progress{Scope: res.Scope, Full: res.Full, Err: err.Error()})
	return serr
}

func (c *Coordinator) complete(res Result) {
	c.logger.Debug("sync completed",
		zap.String("scope", res.Scope),
		zap.Bool("full", res.Full),
		zap.Int("fetched", res.Fetched),
		zap.Bool("discarded", res.Discarded))
	c.bus.Emit(bus.KindSyncCompleted, Progress{Scope: res.Scope, Full: res.Full})
}

// IsMessagesScope reports whether scope names a conversation's messages and
// returns that conversation id.
func IsMessagesScope(scope string) (string, bool) {
	return strings.CutPrefix(scope, messagesPrefix)
}
