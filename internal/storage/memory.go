// Package storage provides TaskStore implementations. The in-memory store
// backs tests and single-process runs; the PostgREST store backs deployments
// with a Supabase-style database.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"morgus/internal/agent/ports"
)

// MemoryStore is a goroutine-safe in-process TaskStore.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*ports.Task
	steps     map[string][]*ports.TaskStep
	artifacts map[string][]*ports.Artifact
	now       func() time.Time
	seq       int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*ports.Task),
		steps:     make(map[string][]*ports.TaskStep),
		artifacts: make(map[string][]*ports.Artifact),
		now:       time.Now,
	}
}

func (s *MemoryStore) CreateTask(_ context.Context, title, description, model string) (*ports.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	task := &ports.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      ports.StatusPending,
		Model:       model,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[task.ID] = task
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*ports.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, taskID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	for key, value := range fields {
		switch key {
		case "status":
			task.Status = fmt.Sprint(value)
		case "phase":
			task.Phase = fmt.Sprint(value)
		case "title":
			task.Title = fmt.Sprint(value)
		case "description":
			task.Description = fmt.Sprint(value)
		case "model":
			task.Model = fmt.Sprint(value)
		default:
			return fmt.Errorf("unknown task field %q", key)
		}
	}
	task.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*ports.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*ports.Task
	for _, task := range s.tasks {
		if task.Status == ports.StatusPending {
			cp := *task
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *MemoryStore) AppendStep(_ context.Context, taskID, phase, kind, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	s.seq++
	step := &ports.TaskStep{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Phase:     phase,
		Kind:      kind,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: s.now().Add(time.Duration(s.seq) * time.Nanosecond),
	}
	s.steps[taskID] = append(s.steps[taskID], step)
	return nil
}

func (s *MemoryStore) ListSteps(_ context.Context, taskID string) ([]*ports.TaskStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.steps[taskID]
	out := make([]*ports.TaskStep, len(steps))
	for i, step := range steps {
		cp := *step
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) AppendArtifact(_ context.Context, artifact *ports.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[artifact.TaskID]; !ok {
		return fmt.Errorf("task %s not found", artifact.TaskID)
	}
	cp := *artifact
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = s.now()
	s.artifacts[artifact.TaskID] = append(s.artifacts[artifact.TaskID], &cp)
	return nil
}

func (s *MemoryStore) ListArtifacts(_ context.Context, taskID string) ([]*ports.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifacts := s.artifacts[taskID]
	out := make([]*ports.Artifact, len(artifacts))
	for i, artifact := range artifacts {
		cp := *artifact
		out[i] = &cp
	}
	return out, nil
}
