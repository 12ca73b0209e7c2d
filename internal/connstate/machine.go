package connstate

import (
	"log/slog"
	"sync"
)

// Machine serializes dispatches against the reducer. Every Dispatch
// applies atomically: observers see either the state before an action or
// the state after it, never an intermediate.
type Machine struct {
	mu     sync.Mutex
	state  State
	logger *slog.Logger
}

// NewMachine creates a machine in the initial state.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{state: NewState(), logger: logger}
}

// Dispatch reduces the action and returns the resulting state snapshot.
func (m *Machine) Dispatch(action Action) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.state
	m.state = Reduce(m.state, action)

	if before.HasConnection != m.state.HasConnection {
		m.logger.Info("connectivity changed",
			slog.Bool("connected", m.state.HasConnection))
	}

	return m.state
}

// Current returns the latest state snapshot.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}
