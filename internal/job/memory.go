package job

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the default process-lifetime Store: a mutex-guarded map.
// Two writers touch a record over its life (the submitting request creates
// it, the job's worker finalizes it), so every access goes through the lock.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.Method = a.Method
	j.OutputPath = a.Path
	j.OutputFilename = a.Filename
	j.FileSize = a.Size
	j.Metadata = a.Metadata
	j.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Error = reason
	j.CompletedAt = &now
	return nil
}

func (s *MemoryStore) ClearArtifact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.OutputPath = ""
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) FailProcessing(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	now := time.Now().UTC()
	for id, j := range s.jobs {
		if j.Status == StatusPending || j.Status == StatusProcessing {
			j.Status = StatusFailed
			j.Error = "conversion interrupted by service restart"
			j.CompletedAt = &now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
