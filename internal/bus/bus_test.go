package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("mirror.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageAppended, Timestamp: time.Now(), Payload: "m1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageAppended {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessageAppended)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Emit(KindMirrorReset, nil)
	b.Emit(KindSyncCompleted, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncCompleted {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSyncCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The mirror event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("mirror.", 10)
	unsub()
	unsub() // idempotent

	b.Emit(KindMirrorReset, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Emit("test.one", nil)
	// Buffer is full; dropped without blocking.
	b.Emit("test.two", nil)

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}

	unsub()
	if b.Dropped() != 1 {
		t.Errorf("Dropped() after unsubscribe = %d, want 1", b.Dropped())
	}
}

func TestEmitStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: "x"})
	evt := <-ch
	if evt.Timestamp.IsZero() {
		t.Error("Publish did not stamp a zero timestamp")
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Emit(KindMirrorReset, nil)
}
