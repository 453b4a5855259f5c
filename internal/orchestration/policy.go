package orchestration

import (
	"time"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// Rule adjusts a run's bookkeeping fields for one proposed state
// transition. initial is the state the run is leaving (nil before the first
// transition); proposed is the state it is entering.
//
// Rules must be cheap and side-effect free outside the run itself; the
// engine persists the run after applying the full policy.
type Rule func(run *api.FlowRun, initial, proposed *api.State)

// GlobalPolicy returns the rules applied, in order, to every state
// transition of every run.
func GlobalPolicy() []Rule {
	return []Rule{
		SetRunStateType,
		SetExpectedStartTime,
		SetNextScheduledStartTime,
		SetStartTime,
		IncrementRunCount,
		IncrementRunTime,
		SetEndTime,
	}
}

// Apply runs the global policy against run for the proposed state and
// records the state on the run. A zero proposed.Timestamp is stamped with
// the current time first.
func Apply(run *api.FlowRun, proposed api.State) {
	if proposed.Timestamp.IsZero() {
		proposed.Timestamp = time.Now()
	}

	initial := run.State
	for _, rule := range GlobalPolicy() {
		rule(run, initial, &proposed)
	}

	run.State = &proposed
	run.Updated = proposed.Timestamp
}

// SetRunStateType keeps the run's denormalized state type in sync with the
// proposed state.
func SetRunStateType(run *api.FlowRun, initial, proposed *api.State) {
	run.StateType = proposed.Type
}

// SetExpectedStartTime records when the run was expected to start: the
// scheduled time for SCHEDULED states, otherwise the timestamp of the first
// proposed state. It is only set once.
func SetExpectedStartTime(run *api.FlowRun, initial, proposed *api.State) {
	if run.ExpectedStartTime != nil {
		return
	}
	if proposed.Type == api.StateScheduled && proposed.ScheduledTime != nil {
		t := *proposed.ScheduledTime
		run.ExpectedStartTime = &t
		return
	}
	t := proposed.Timestamp
	run.ExpectedStartTime = &t
}

// SetNextScheduledStartTime tracks the upcoming scheduled start: set when
// entering SCHEDULED, cleared when leaving it.
func SetNextScheduledStartTime(run *api.FlowRun, initial, proposed *api.State) {
	if proposed.Type == api.StateScheduled {
		run.NextScheduledStartTime = proposed.ScheduledTime
		return
	}
	if initial != nil && initial.Type == api.StateScheduled {
		run.NextScheduledStartTime = nil
	}
}

// SetStartTime records the wall-clock start of the first RUNNING state.
func SetStartTime(run *api.FlowRun, initial, proposed *api.State) {
	if run.StartTime != nil || proposed.Type != api.StateRunning {
		return
	}
	t := proposed.Timestamp
	run.StartTime = &t
}

// IncrementRunCount counts entries into RUNNING. Every attempt, including
// retries, bumps the count.
func IncrementRunCount(run *api.FlowRun, initial, proposed *api.State) {
	if proposed.Type == api.StateRunning {
		run.RunCount++
	}
}

// IncrementRunTime accumulates the time spent in RUNNING. It only fires
// when the run is leaving RUNNING; transitions from other states contribute
// nothing.
func IncrementRunTime(run *api.FlowRun, initial, proposed *api.State) {
	if initial == nil || initial.Type != api.StateRunning {
		return
	}
	run.TotalRunTime += proposed.Timestamp.Sub(initial.Timestamp)
}

// SetEndTime records when the run reached a terminal state, and unsets it
// again if the run is forced back out of one (e.g. by a retry).
func SetEndTime(run *api.FlowRun, initial, proposed *api.State) {
	if proposed.Type.IsTerminal() {
		t := proposed.Timestamp
		run.EndTime = &t
		return
	}
	if initial != nil && initial.Type.IsTerminal() {
		run.EndTime = nil
	}
}
