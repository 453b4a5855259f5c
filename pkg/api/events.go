package api

import "time"

// EventType identifies a flow run history event.
type EventType string

const (
	EventRunScheduled EventType = "run.scheduled"
	EventRunStarted   EventType = "run.started"
	EventRunRetried   EventType = "run.retried"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunCrashed   EventType = "run.crashed"
	EventRunCancelled EventType = "run.cancelled"

	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptFailed    EventType = "attempt.failed"
	EventAwaitingRetry    EventType = "attempt.awaiting-retry"
	EventAttemptSucceeded EventType = "attempt.succeeded"
)

// RunEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type RunEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	FlowName string
	Attempt  int

	// Small, human-oriented details (e.g. error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
