package persistence

import (
	"sync"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// EventStore records run events for later inspection.
type EventStore interface {
	AppendEvent(ev api.RunEvent) error

	// ListEvents returns the events for a run in append order.
	ListEvents(runID string) ([]api.RunEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

var _ EventStore = NoopEventStore{}

func (NoopEventStore) AppendEvent(api.RunEvent) error { return nil }

func (NoopEventStore) ListEvents(string) ([]api.RunEvent, error) {
	return []api.RunEvent{}, nil
}

// InMemoryEventStore keeps events in a map keyed by run ID.
// Safe for concurrent use.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.RunEvent
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events: make(map[string][]api.RunEvent),
	}
}

func (s *InMemoryEventStore) AppendEvent(ev api.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(runID string) ([]api.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[runID]
	out := make([]api.RunEvent, len(evs))
	copy(out, evs)
	return out, nil
}
