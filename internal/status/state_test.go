package status

import (
	"testing"
	"time"

	"github.com/mumblechat/mumble/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
	if m.Authenticated() {
		t.Error("booting session reported authenticated")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Unauthenticated},
		{Booting, Connecting},
		{Unauthenticated, Connecting},
		{Connecting, Syncing},
		{Syncing, Ready},
		{Ready, Syncing},
		{Ready, Unauthenticated},
		{Ready, Reconnecting},
		{Reconnecting, Connecting},
		{Degraded, Ready},
		{Error, Booting},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &Machine{current: tt.from}
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) failed: %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("Current() = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Ready},
		{Unauthenticated, Ready},
		{Unauthenticated, Syncing},
		{Ready, Booting},
		{Error, Ready},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &Machine{current: tt.from}
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state changed on invalid transition: %s", m.Current())
			}
		})
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 4)
	defer unsub()

	m := &Machine{current: Ready, bus: b}
	if err := m.Transition(Ready); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuthenticated(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{Booting, false},
		{Unauthenticated, false},
		{Connecting, true},
		{Syncing, true},
		{Ready, true},
		{Reconnecting, true},
		{Degraded, true},
		{Error, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			m := &Machine{current: tt.state}
			if got := m.Authenticated(); got != tt.want {
				t.Errorf("Authenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		sc, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if sc.From != Booting || sc.To != Connecting {
			t.Errorf("got %s -> %s, want BOOTING -> CONNECTING", sc.From, sc.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status change event")
	}
}

// TestDisconnectConnectCycle walks the account disconnect path and back:
// READY -> UNAUTHENTICATED -> CONNECTING -> SYNCING -> READY
func TestDisconnectConnectCycle(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Connecting, Syncing, Ready, Unauthenticated, Connecting, Syncing, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if !m.Authenticated() {
		t.Error("READY session should be authenticated")
	}
}
