package taskqueue

import (
	"context"
	"time"
)

// InMemoryQueue is a Queue implementation backed by a buffered channel.
// It is safe for concurrent use.
//
// Dequeue holds a claimed task back until its NotBefore has passed. Tasks
// are delivered in enqueue order, so a far-future task delays the tasks
// behind it; deployments that schedule far ahead should use the SQLite
// queue, which orders by not_before.
type InMemoryQueue struct {
	ch chan Task
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch: make(chan Task, capacity),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	var t Task
	select {
	case t = <-q.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if wait := time.Until(t.NotBefore); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Give the task back so a later call can claim it.
			select {
			case q.ch <- t:
			default:
			}
			return nil, ctx.Err()
		}
	}
	return &t, nil
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
