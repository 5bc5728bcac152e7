package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/store"
	"go.uber.org/zap"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

type sendCall struct {
	ConversationID string
	Text           string
}

func (m *mockSender) SendMessage(_ context.Context, conversationID string, content model.Content) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{ConversationID: conversationID, Text: string(content.Payload)})
	if m.err != nil {
		return model.Message{}, m.err
	}
	return model.Message{
		ID:             fmt.Sprintf("server-%d", len(m.calls)),
		ConversationID: conversationID,
		SentAt:         int64(len(m.calls)),
		SenderID:       "0xself",
		Content:        content,
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSender(t *testing.T, mock *mockSender) (*Sender, *store.DB, *mirror.Cache, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	cache := mirror.New(mirror.Options{Strict: true})
	cache.UpsertConversation(model.Conversation{ID: "c1", Kind: model.KindGroup})
	logger, _ := zap.NewDevelopment()
	s := NewSender(db, mock, cache, b, logger)
	s.interval = 20 * time.Millisecond
	return s, db, cache, b
}

func TestSenderDeliversAndMirrors(t *testing.T) {
	mock := &mockSender{}
	s, db, cache, b := testSender(t, mock)

	ch, unsub := b.Subscribe("outbox.", 10)
	defer unsub()

	clientID, err := s.Queue("c1", model.Text("hello"))
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindOutboxSent {
			t.Fatalf("event kind = %q, want %s", evt.Kind, bus.KindOutboxSent)
		}
		res := evt.Payload.(Result)
		if res.ClientMsgID != clientID || res.ServerMsgID != "server-1" {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for outbox.sent event")
	}

	if mock.calls[0].ConversationID != "c1" || mock.calls[0].Text != "hello" {
		t.Errorf("call = %+v, want {c1, hello}", mock.calls[0])
	}
	if !cache.HasMessage("server-1") {
		t.Error("sent message not appended to the mirror")
	}

	pending, err := db.PendingOutbox(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}
	entry, err := db.GetOutbox(clientID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.OutboxSent || entry.ServerMsgID != "server-1" {
		t.Errorf("entry = %+v, want sent server-1", entry)
	}
}

func TestSenderLiveEchoIsNoop(t *testing.T) {
	mock := &mockSender{}
	s, _, cache, _ := testSender(t, mock)

	if _, err := s.Queue("c1", model.Text("hi")); err != nil {
		t.Fatal(err)
	}
	s.processPending(context.Background())

	// The live stream delivers the same message afterwards.
	if cache.AppendMessage("c1", model.Message{ID: "server-1", SentAt: 1}) {
		t.Error("echo of a sent message should not be appended twice")
	}
	if n := len(cache.Messages("c1")); n != 1 {
		t.Errorf("got %d messages, want 1", n)
	}
}

func TestQueueUnknownConversation(t *testing.T) {
	s, _, _, _ := testSender(t, &mockSender{})
	if _, err := s.Queue("nope", model.Text("x")); !errors.Is(err, mirror.ErrUnknownConversation) {
		t.Errorf("err = %v, want ErrUnknownConversation", err)
	}
}

func TestSenderRetriesThenFails(t *testing.T) {
	mock := &mockSender{err: fmt.Errorf("network error")}
	s, db, _, b := testSender(t, mock)
	s.maxAttempts = 2

	ch, unsub := b.Subscribe(bus.KindOutboxFailed, 10)
	defer unsub()

	clientID, err := s.Queue("c1", model.Text("hello"))
	if err != nil {
		t.Fatal(err)
	}

	s.processPending(context.Background())
	s.processPending(context.Background())
	s.processPending(context.Background())

	if n := mock.callCount(); n != 2 {
		t.Errorf("send attempts = %d, want 2", n)
	}

	var results []Result
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			results = append(results, evt.Payload.(Result))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for outbox.failed event")
		}
	}
	if results[0].Final || !results[1].Final {
		t.Errorf("final flags = %v, %v; want false, true", results[0].Final, results[1].Final)
	}

	entry, err := db.GetOutbox(clientID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.OutboxFailed || entry.ErrorMessage != "network error" {
		t.Errorf("entry = %+v, want failed with error message", entry)
	}
}

// stallSender blocks until the send context is canceled.
type stallSender struct {
	started chan struct{}
}

func (m *stallSender) SendMessage(ctx context.Context, _ string, _ model.Content) (model.Message, error) {
	m.started <- struct{}{}
	<-ctx.Done()
	return model.Message{}, ctx.Err()
}

func TestShutdownDuringSendKeepsAttempt(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	cache := mirror.New(mirror.Options{Strict: true})
	cache.UpsertConversation(model.Conversation{ID: "c1", Kind: model.KindGroup})
	stall := &stallSender{started: make(chan struct{}, 1)}
	s := NewSender(db, stall, cache, b, nil)

	ch, unsub := b.Subscribe(bus.KindOutboxFailed, 1)
	defer unsub()

	clientID, err := s.Queue("c1", model.Text("hello"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.processPending(ctx)
	}()
	<-stall.started
	cancel()
	<-done

	entry, err := db.GetOutbox(clientID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.OutboxQueued || entry.Attempts != 0 {
		t.Errorf("entry = %+v, want queued with no attempts spent", entry)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected %s event on shutdown", evt.Kind)
	default:
	}

	pending, err := db.PendingOutbox(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != clientID {
		t.Errorf("pending = %+v, want the interrupted entry", pending)
	}
}

func TestSenderRequeuesInterruptedEntries(t *testing.T) {
	mock := &mockSender{}
	s, db, cache, _ := testSender(t, mock)

	if err := db.QueueOutbox("left-over", "c1", "text", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("left-over"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for !cache.HasMessage("server-1") {
		select {
		case <-deadline:
			t.Fatal("interrupted entry was not delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSenderStopIdempotent(t *testing.T) {
	s, _, _, _ := testSender(t, &mockSender{})
	s.Stop()
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
