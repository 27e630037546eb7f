package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is the lifecycle state of the server channel.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Closed       State = "CLOSED"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Error},
	Connected:    {Connecting, Closed, Error},
	Closed:       {Connecting},
	Error:        {Connecting, Closed},
}

// Machine tracks and enforces channel lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state or reports why it cannot.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.bus.Notify(bus.ConnectionChanged, Change{From: from, To: to})
	return nil
}

// Change is the payload of connection change events.
type Change struct {
	From State
	To   State
}
