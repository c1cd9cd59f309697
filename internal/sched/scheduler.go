// Package sched runs named periodic tasks with individual cancellation.
// Every interval the subsystem needs (sampling, memory snapshots, rule
// checks, audio adaptation) is registered here, so shutdown can cancel
// exactly the tasks it started and nothing else.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is the function body of a periodic task. It must return promptly;
// long work should respect ctx.
type Task func(ctx context.Context)

type entry struct {
	name     string
	interval time.Duration
	cancel   context.CancelFunc
}

// Scheduler owns a set of periodic tasks. The zero value is not usable;
// construct with New.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		tasks:  make(map[string]*entry),
	}
}

// Every registers and starts a periodic task. Task names are unique; a
// second registration under the same name fails.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn Task) error {
	if interval <= 0 {
		return fmt.Errorf("sched: task %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("sched: scheduler is stopped")
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("sched: task %s already registered", name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	e := &entry{name: name, interval: interval, cancel: cancel}
	s.tasks[name] = e

	s.wg.Add(1)
	go s.run(taskCtx, e, fn)
	return nil
}

func (s *Scheduler) run(ctx context.Context, e *entry, fn Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, e, fn)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, e *entry, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", e.name),
				zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Cancel stops a single task by name. It reports whether the task existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[name]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.tasks, name)
	return true
}

// Names returns the currently registered task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Stop cancels every task and waits for their goroutines to exit. The
// scheduler cannot be reused afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for name, e := range s.tasks {
		e.cancel()
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
