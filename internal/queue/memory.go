package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-protected Store backed by a map. It enforces the
// same status precondition on Transition as the Postgres implementation,
// which makes it a faithful stand-in for tests.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]*Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*Message)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	if m.MaxAttempts == 0 {
		m.MaxAttempts = DefaultMaxAttempts
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) PendingDue(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Message
	for _, m := range s.messages {
		if m.Due(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		si, sj := schedOrCreated(out[i]), schedOrCreated(out[j])
		return si.Before(sj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Message
	for _, m := range s.messages {
		if m.Status == status {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to Status, upd Update) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	if upd.Attempts != nil {
		m.Attempts = *upd.Attempts
	}
	if upd.ScheduledFor != nil {
		t := *upd.ScheduledFor
		m.ScheduledFor = &t
	}
	if upd.SentAt != nil {
		t := *upd.SentAt
		m.SentAt = &t
	}
	if upd.ErrorMessage != nil {
		m.ErrorMessage = *upd.ErrorMessage
	}
	return true, nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, status Status, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, m := range s.messages {
		if m.Status == status && m.CreatedAt.Before(cutoff) {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

func schedOrCreated(m *Message) time.Time {
	if m.ScheduledFor != nil {
		return *m.ScheduledFor
	}
	return m.CreatedAt
}
