package runlog

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// InMemoryStore is a Store backed by an in-process append-only slice per run,
// used for unit tests and single-process development.
type InMemoryStore struct {
	mu     sync.Mutex
	events map[string][]*Event
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]*Event)}
}

func (s *InMemoryStore) Append(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = strconv.Itoa(len(s.events[e.RunID]))
	s.events[e.RunID] = append(s.events[e.RunID], &cp)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, runID string, cursor string, limit int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		return Page{}, fmt.Errorf("runlog: limit must be positive")
	}
	all := s.events[runID]
	start := 0
	if cursor != "" {
		idx, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("runlog: invalid cursor %q", cursor)
		}
		start = idx
	}
	if start >= len(all) {
		return Page{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*Event, end-start)
	copy(out, all[start:end])
	page := Page{Events: out}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
