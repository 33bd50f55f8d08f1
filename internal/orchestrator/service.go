package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"morgus/internal/agent/ports"
	"morgus/internal/config"
	"morgus/internal/logging"
)

// Service polls the store for pending tasks and dispatches them to the
// Orchestrator, bounded by MaxConcurrentTasks.
type Service struct {
	cfg    *config.Config
	store  ports.TaskStore
	orch   *Orchestrator
	sem    *semaphore.Weighted
	logger logging.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(cfg *config.Config, store ports.TaskStore, orch *Orchestrator) *Service {
	limit := int64(cfg.MaxConcurrentTasks)
	if limit <= 0 {
		limit = 1
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		orch:     orch,
		sem:      semaphore.NewWeighted(limit),
		logger:   logging.NewComponentLogger("service"),
		inFlight: make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. Poll errors back off before retrying so
// a broken store does not spin the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("orchestrator service started, polling every %s", s.cfg.PollInterval)

	for {
		if err := s.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("poll failed: %v", err)
			if !sleep(ctx, s.cfg.ErrorBackoff) {
				break
			}
			continue
		}
		if !sleep(ctx, s.cfg.PollInterval) {
			break
		}
	}

	// Drain in-flight tasks.
	limit := int64(s.cfg.MaxConcurrentTasks)
	if limit <= 0 {
		limit = 1
	}
	_ = s.sem.Acquire(context.Background(), limit)
	s.logger.Info("orchestrator service stopped")
	return ctx.Err()
}

func (s *Service) pollOnce(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, task := range pending {
		taskID := task.ID
		if !s.claim(taskID) {
			continue
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.release(taskID)
			return err
		}
		s.logger.Info("found pending task: %s", taskID)

		go func() {
			defer s.sem.Release(1)
			defer s.release(taskID)
			if err := s.orch.ExecuteTask(ctx, taskID); err != nil {
				s.logger.Error("task %s: %v", taskID, err)
			}
		}()
	}
	return nil
}

// claim marks a task as in flight so overlapping polls do not dispatch it
// twice while it is still listed as pending.
func (s *Service) claim(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[taskID]; ok {
		return false
	}
	s.inFlight[taskID] = struct{}{}
	return true
}

func (s *Service) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, taskID)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
