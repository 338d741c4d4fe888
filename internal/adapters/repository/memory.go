package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

type callEntry struct {
	name string
	at   time.Time
}

// MemoryStore keeps everything in process memory behind a single mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	students []model.Student
	history  []callEntry
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Students(ctx context.Context) ([]model.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]model.Student, len(s.students))
	copy(out, s.students)
	return out, nil
}

func (s *MemoryStore) ReplaceStudents(ctx context.Context, students []model.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	s.students = make([]model.Student, len(students))
	copy(s.students, students)
	return nil
}

func (s *MemoryStore) RecordCall(ctx context.Context, choose ChooseFunc, at time.Time) (model.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return model.CallResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.CallResult{}, ErrStoreClosed
	}

	snapshot := make([]model.Student, len(s.students))
	copy(snapshot, s.students)
	idx, err := pick(choose, snapshot)
	if err != nil {
		return model.CallResult{}, err
	}

	s.students[idx].Count++
	chosen := s.students[idx]
	s.history = append(s.history, callEntry{name: chosen.Name, at: at})
	return model.CallResult{Name: chosen.Name, Count: chosen.Count}, nil
}

func (s *MemoryStore) History(ctx context.Context, limit int) ([]model.CallRecord, error) {
	if err := validLimit(limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	start := len(s.history) - limit
	if start < 0 {
		start = 0
	}
	out := make([]model.CallRecord, 0, len(s.history)-start)
	for _, e := range s.history[start:] {
		out = append(out, model.NewCallRecord(e.name, e.at))
	}
	return out, nil
}

func (s *MemoryStore) CallCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.history), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.students = nil
	s.history = nil
	return nil
}

// Close marks the store closed. Further calls return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
