package api

import "time"

// StateType is the lifecycle state of a flow run.
type StateType string

const (
	StateScheduled StateType = "SCHEDULED"
	StatePending   StateType = "PENDING"
	StateRunning   StateType = "RUNNING"
	StateCompleted StateType = "COMPLETED"
	StateFailed    StateType = "FAILED"
	StateCancelled StateType = "CANCELLED"
	StateCrashed   StateType = "CRASHED"
)

// TerminalStates holds the state types a run cannot leave on its own.
// A terminal run only moves again when explicitly retried.
var TerminalStates = map[StateType]bool{
	StateCompleted: true,
	StateFailed:    true,
	StateCancelled: true,
	StateCrashed:   true,
}

// IsTerminal reports whether t is a terminal state type.
func (t StateType) IsTerminal() bool {
	return TerminalStates[t]
}

// State is one point in a run's lifecycle. States are immutable once
// recorded; transitions create new State values.
type State struct {
	Type      StateType
	Timestamp time.Time

	// Message is a short human-oriented note, e.g. "awaiting retry".
	Message string

	// ScheduledTime is set for SCHEDULED states and says when the run
	// is intended to start.
	ScheduledTime *time.Time
}

// Scheduled returns a SCHEDULED state with the given intended start time.
func Scheduled(at time.Time) State {
	return State{
		Type:          StateScheduled,
		Timestamp:     time.Now(),
		ScheduledTime: &at,
	}
}

// Pending returns a PENDING state.
func Pending() State {
	return State{Type: StatePending, Timestamp: time.Now()}
}

// Running returns a RUNNING state.
func Running() State {
	return State{Type: StateRunning, Timestamp: time.Now()}
}

// Completed returns a COMPLETED state.
func Completed() State {
	return State{Type: StateCompleted, Timestamp: time.Now()}
}

// Failed returns a FAILED state carrying the error message.
func Failed(msg string) State {
	return State{Type: StateFailed, Timestamp: time.Now(), Message: msg}
}

// Cancelled returns a CANCELLED state.
func Cancelled() State {
	return State{Type: StateCancelled, Timestamp: time.Now()}
}

// Crashed returns a CRASHED state. It is used when a run is aborted by
// something outside the flow function itself, e.g. context cancellation.
func Crashed(msg string) State {
	return State{Type: StateCrashed, Timestamp: time.Now(), Message: msg}
}
