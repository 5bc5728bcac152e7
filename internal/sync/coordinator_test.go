package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source"
	"github.com/mumblechat/mumble/internal/source/memory"
)

type authStub bool

func (a authStub) Authenticated() bool { return bool(a) }

// blockingSource holds ListConversations until release is closed.
type blockingSource struct {
	*memory.Source
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingSource() *blockingSource {
	return &blockingSource{
		Source:  memory.New("0xself"),
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingSource) ListConversations(ctx context.Context, opts source.ListOptions) ([]model.RemoteConversation, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Source.ListConversations(ctx, opts)
}

func newCoordinator(t *testing.T, src source.Source) (*Coordinator, *mirror.Cache) {
	t.Helper()
	cache := mirror.New(mirror.Options{Strict: true})
	c := NewCoordinator(Options{Source: src, Cache: cache, Auth: authStub(true)})
	t.Cleanup(c.Close)
	return c, cache
}

func TestIncrementalAfterFullSync(t *testing.T) {
	src := memory.New("0xself")
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10}, model.Members("0xself", "0xa")...)
	src.AddConversation(model.Conversation{ID: "c2", Kind: model.KindGroup, CreatedAt: 20}, model.Members("0xself", "0xa", "0xb")...)
	c, cache := newCoordinator(t, src)
	ctx := context.Background()

	res, err := c.SyncConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Full || res.Fetched != 2 {
		t.Errorf("first sync = %+v, want full with 2 fetched", res)
	}
	if cur := cache.Cursor(); !cur.Set || cur.LastCreatedAfter != 20 {
		t.Errorf("cursor = %+v, want 20", cur)
	}
	if cache.MemberCount("c2") != 3 {
		t.Errorf("MemberCount(c2) = %d, want 3", cache.MemberCount("c2"))
	}

	src.AddConversation(model.Conversation{ID: "c3", Kind: model.KindGroup, CreatedAt: 30})

	res, err = c.SyncConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Full {
		t.Error("second sync should be incremental")
	}
	if res.Fetched != 1 {
		t.Errorf("fetched = %d, want 1 (only c3)", res.Fetched)
	}
	if cache.Len() != 3 {
		t.Errorf("Len = %d, want 3", cache.Len())
	}
	if cur := cache.Cursor(); cur.LastCreatedAfter != 30 {
		t.Errorf("cursor = %+v, want 30", cur)
	}
}

func TestForcedFullWhenMirrorEmpty(t *testing.T) {
	src := memory.New("0xself")
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)
	cache.SetCursor(model.Cursor{LastCreatedAfter: 100, Set: true})

	res, err := c.SyncConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Full {
		t.Error("sync with empty mirror should be full")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
	// The cursor never moves backwards.
	if cur := cache.Cursor(); cur.LastCreatedAfter != 100 {
		t.Errorf("cursor = %+v, want 100", cur)
	}
}

func TestFailureLeavesMirrorUntouched(t *testing.T) {
	src := memory.New("0xself")
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)
	ctx := context.Background()

	if _, err := c.SyncConversations(ctx); err != nil {
		t.Fatal(err)
	}

	down := errors.New("network down")
	src.Fail(down)
	src.AddConversation(model.Conversation{ID: "c2", Kind: model.KindGroup, CreatedAt: 20})

	_, err := c.SyncConversations(ctx)
	var serr *SyncError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *SyncError", err)
	}
	if serr.Scope != ScopeConversations || serr.Full {
		t.Errorf("SyncError = %+v, want incremental conversations", serr)
	}
	if !errors.Is(err, down) {
		t.Error("SyncError should wrap the source error")
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
	if cur := cache.Cursor(); cur.LastCreatedAfter != 10 {
		t.Errorf("cursor = %+v, want 10", cur)
	}
	if c.State(ScopeConversations) != Idle {
		t.Error("scope should return to idle after failure")
	}
}

func TestUnauthenticatedFailsFast(t *testing.T) {
	src := memory.New("0xself")
	cache := mirror.New(mirror.Options{})
	c := NewCoordinator(Options{Source: src, Cache: cache, Auth: authStub(false)})
	defer c.Close()

	if _, err := c.SyncConversations(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
	if n := src.Calls("ListConversations"); n != 0 {
		t.Errorf("source called %d times, want 0", n)
	}
}

func TestOverlappingSyncsShareOneFetch(t *testing.T) {
	src := newBlockingSource()
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)

	var wg gosync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.SyncConversations(context.Background())
		}()
		if i == 0 {
			<-src.started
		}
	}

	if c.State(ScopeConversations) != Syncing {
		t.Error("scope should be syncing while the fetch is blocked")
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("ListConversations called %d times, want 1", n)
	}
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if !results[i].Shared {
			t.Errorf("caller %d: result not marked shared", i)
		}
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
	if c.State(ScopeConversations) != Idle {
		t.Error("scope should be idle after the fetch")
	}
}

func TestCallerCancelDoesNotAbortFetch(t *testing.T) {
	src := newBlockingSource()
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.SyncConversations(ctx)
		errc <- err
	}()
	<-src.started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	close(src.release)
	deadline := time.After(time.Second)
	for cache.Len() != 1 {
		select {
		case <-deadline:
			t.Fatal("abandoned fetch was not applied")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPullDiscardedAfterReset(t *testing.T) {
	src := newBlockingSource()
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)

	resc := make(chan Result, 1)
	go func() {
		res, _ := c.SyncConversations(context.Background())
		resc <- res
	}()
	<-src.started
	cache.Reset()
	close(src.release)

	res := <-resc
	if !res.Discarded {
		t.Error("pull started before reset should be discarded")
	}
	if cache.Len() != 0 || cache.Cursor().Set {
		t.Error("discarded pull mutated the mirror")
	}
}

func TestSyncAfterResetStartsFreshPull(t *testing.T) {
	src := newBlockingSource()
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)

	stale := make(chan Result, 1)
	go func() {
		res, _ := c.SyncConversations(context.Background())
		stale <- res
	}()
	<-src.started
	cache.Reset()

	fresh := make(chan Result, 1)
	go func() {
		res, err := c.SyncConversations(context.Background())
		if err != nil {
			t.Errorf("sync after reset: %v", err)
		}
		fresh <- res
	}()
	select {
	case <-src.started:
	case <-time.After(time.Second):
		t.Fatal("sync after reset joined the pull started before it")
	}
	close(src.release)

	if res := <-stale; !res.Discarded {
		t.Error("pull started before reset should be discarded")
	}
	res := <-fresh
	if res.Discarded || res.Shared {
		t.Errorf("fresh pull = %+v, want applied and unshared", res)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("ListConversations calls = %d, want 2", got)
	}
	if cache.Len() != 1 || !cache.Cursor().Set {
		t.Errorf("mirror not refilled: len=%d cursor=%+v", cache.Len(), cache.Cursor())
	}
	if c.State(ScopeConversations) != Idle {
		t.Error("scope still syncing after both pulls returned")
	}
}

func TestSyncMessages(t *testing.T) {
	src := memory.New("0xself")
	src.AddConversation(model.Conversation{ID: "c1", Kind: model.KindDirect, CreatedAt: 10})
	c, cache := newCoordinator(t, src)
	ctx := context.Background()

	if _, err := c.SyncMessages(ctx, "c1"); !errors.Is(err, mirror.ErrUnknownConversation) {
		t.Errorf("err = %v, want ErrUnknownConversation", err)
	}
	if _, err := c.SyncConversations(ctx); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"m2", "m1"} {
		if _, err := src.Deliver(model.Message{ID: id, ConversationID: "c1", SenderID: "0xa"}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := c.SyncMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scope != MessagesScope("c1") || res.Inserted != 2 {
		t.Errorf("result = %+v, want 2 inserted", res)
	}
	res, err = c.SyncMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 0 {
		t.Errorf("second pull inserted %d, want 0", res.Inserted)
	}
	msgs := cache.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m2" {
		t.Errorf("messages = %+v, want m2 then m1 by sentAt", msgs)
	}
}

func TestSyncAll(t *testing.T) {
	src := memory.New("0xself")
	for _, id := range []string{"c1", "c2", "c3"} {
		src.AddConversation(model.Conversation{ID: id, Kind: model.KindGroup})
		if _, err := src.Deliver(model.Message{ID: id + "-m", ConversationID: id}); err != nil {
			t.Fatal(err)
		}
	}
	c, cache := newCoordinator(t, src)

	report, err := c.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Messages) != 3 {
		t.Fatalf("message results = %d, want 3", len(report.Messages))
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if !cache.HasMessage(id + "-m") {
			t.Errorf("message %s-m not mirrored", id)
		}
	}
}

func TestSyncEmitsProgress(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 8)
	defer unsub()

	src := memory.New("0xself")
	cache := mirror.New(mirror.Options{})
	c := NewCoordinator(Options{Source: src, Cache: cache, Bus: b})
	defer c.Close()

	src.Fail(errors.New("boom"))
	_, _ = c.SyncConversations(context.Background())

	for _, want := range []string{bus.KindSyncStarted, bus.KindSyncFailed} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("event = %s, want %s", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestMessagesScope(t *testing.T) {
	scope := MessagesScope(" 0xABC ")
	id, ok := IsMessagesScope(scope)
	if !ok || id != "0xabc" {
		t.Errorf("IsMessagesScope(%q) = %q, %v", scope, id, ok)
	}
	if _, ok := IsMessagesScope(ScopeConversations); ok {
		t.Error("conversations scope reported as messages scope")
	}
}
