// Package scheduler runs named, cancellable background tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-sniper/internal/logging"
)

// ErrStopped is returned when scheduling on a stopped Scheduler.
var ErrStopped = errors.New("scheduler stopped")

// Scheduler owns a set of goroutines sharing one cancellation scope.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	mu      sync.Mutex
	stopped bool
	running map[string]int
	wg      sync.WaitGroup
}

// New creates a Scheduler whose tasks stop when parent is cancelled or Stop
// is called.
func New(parent context.Context, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logging.Component(nil, "scheduler")
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		running: make(map[string]int),
	}
}

// Every runs fn every interval until the scheduler stops. Runs of the same
// task never overlap; ticks that arrive while fn is running are dropped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	return s.Go(name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx, name, fn)
			}
		}
	})
}

// Go runs fn once in its own goroutine. fn must return when ctx is done.
func (s *Scheduler) Go(name string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("task %s: %w", name, ErrStopped)
	}
	s.running[name]++
	s.wg.Add(1)

	go func() {
		defer func() {
			s.mu.Lock()
			s.running[name]--
			if s.running[name] == 0 {
				delete(s.running, name)
			}
			s.mu.Unlock()
			s.wg.Done()
		}()
		s.runOnce(s.ctx, name, fn)
		s.log.WithField("task", name).Debug("task exited")
	}()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("task", name).Errorf("task panicked: %v", r)
		}
	}()
	fn(ctx)
}

// Running returns the names of tasks that have not exited.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	return names
}

// Context returns the scheduler's cancellation scope.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Stop cancels all tasks and waits for them to exit or for ctx to end.
// Tasks may not be added after Stop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks still running %v: %w", s.Running(), ctx.Err())
	}
}
