// Package status tracks the session lifecycle. The Machine doubles as the
// identity provider for sync: pulls are refused unless the session is
// authenticated.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mumblechat/mumble/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting         State = "BOOTING"
	Unauthenticated State = "UNAUTHENTICATED"
	Connecting      State = "CONNECTING"
	Syncing         State = "SYNCING"
	Ready           State = "READY"
	Reconnecting    State = "RECONNECTING"
	Degraded        State = "DEGRADED"
	Error           State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:         {Unauthenticated, Connecting, Error},
	Unauthenticated: {Connecting, Error},
	Connecting:      {Syncing, Unauthenticated, Reconnecting, Error},
	Syncing:         {Ready, Reconnecting, Degraded, Unauthenticated, Error},
	Ready:           {Syncing, Reconnecting, Degraded, Unauthenticated, Error},
	Reconnecting:    {Connecting, Degraded, Unauthenticated, Error},
	Degraded:        {Connecting, Syncing, Reconnecting, Ready, Unauthenticated, Error},
	Error:           {Booting},
}

// authenticated lists the states in which an account identity is present.
var authenticated = []State{Connecting, Syncing, Ready, Reconnecting, Degraded}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Authenticated reports whether the session holds an account identity.
func (m *Machine) Authenticated() bool {
	return slices.Contains(authenticated, m.Current())
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	if m.current == to {
		m.mu.Unlock()
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
