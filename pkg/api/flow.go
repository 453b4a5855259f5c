package api

import (
	"context"
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// FlowFunc is the user computation behind a flow. Parameters are bound at
// submission time and handed to the function on every attempt; the function
// itself takes no other arguments.
type FlowFunc func(ctx context.Context, params any) (any, error)

// RetryPolicy controls how a flow run is retried when its function returns
// an error.
//
// Retries counts re-invocations after the first attempt:
//
//	Retries = 0 => just the initial call
//	Retries = 3 => initial call + up to 3 retries (4 attempts total)
//
// RetryDelay is the fixed wait between a failed attempt and the next one.
// It is never applied before the first attempt or after the last. If zero,
// retries happen immediately.
type RetryPolicy struct {
	Retries    int
	RetryDelay time.Duration

	// BackoffMultiplier optionally grows the delay after each failed
	// attempt. Values <= 1 keep the delay constant.
	BackoffMultiplier float64

	// MaxDelay caps the grown delay; <= 0 means no cap.
	MaxDelay time.Duration
}

// FlowDefinition describes a named flow: a single function plus the
// policies applied around it.
type FlowDefinition struct {
	Name        string
	Description string
	Tags        []string

	Fn    FlowFunc
	Retry *RetryPolicy

	// Timeout bounds each individual attempt. Zero means no limit.
	Timeout time.Duration
}

// FlowRun is one execution instance of a flow. It carries the bound
// parameters, the current state, and the bookkeeping fields maintained by
// the orchestration policy on every transition.
type FlowRun struct {
	ID       string
	FlowName string

	// Parameters is the input bound when the run was submitted. It is
	// reused unchanged on retries.
	Parameters any

	// StateType mirrors State.Type and is kept denormalized so stores can
	// filter without decoding the full state.
	StateType StateType
	State     *State

	Output any
	Err    error

	// RunCount is the number of times the run has entered RUNNING.
	RunCount int

	// TotalRunTime accumulates time spent in RUNNING across attempts.
	TotalRunTime time.Duration

	StartTime              *time.Time
	EndTime                *time.Time
	ExpectedStartTime      *time.Time
	NextScheduledStartTime *time.Time

	Created time.Time
	Updated time.Time
}

// RunFilter selects runs from a store. Zero values mean "no filter" for
// that field.
type RunFilter struct {
	// FlowName, if non-empty, limits results to runs of the given flow.
	FlowName string

	// StateType, if non-empty, limits results to runs in the given state.
	StateType StateType
}
