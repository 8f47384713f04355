// Package scheduler implements the TaskScheduler collaborator (spec.md §6):
// the single conceptual worker each bolt- or memory-backed store owns to run
// its backend calls off the caller's goroutine. The SQLite operation queue
// does not use it; it has its own flush ticker.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lacunalabs/blobcache/pkg/log"
)

// Work is a unit of scheduled work. Scheduled work never returns a value
// directly; callers compose with pkg/future when they need a result.
type Work func()

// Scheduler is the store's single conceptual worker (spec.md §5): Now
// supplies the wall clock used for expiry comparisons, Schedule and
// ScheduleAfter run work on the scheduler's own goroutine so callers never
// block their own thread on disk or crypto suspension points.
type Scheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	closed  bool
	pending chan Work
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds and starts a Scheduler. queueDepth bounds how many pending
// Schedule calls may be buffered before Schedule blocks the caller; 0
// selects a sensible default.
func New(queueDepth int) *Scheduler {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	s := &Scheduler{
		logger:  log.WithComponent("scheduler"),
		pending: make(chan Work, queueDepth),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Now returns the current wall-clock instant used for expiry comparisons
// (spec.md §4.3: "the backend's scheduler clock at the moment of the
// query").
func (s *Scheduler) Now() time.Time {
	return time.Now().UTC()
}

// Schedule enqueues work to run on the scheduler's worker goroutine. It
// returns immediately; work runs asynchronously, preserving submission
// order.
func (s *Scheduler) Schedule(work Work) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug().Msg("schedule called after close, dropping work")
		return
	}
	s.mu.Unlock()

	select {
	case s.pending <- work:
	case <-s.stopCh:
	}
}

// ScheduleAfter enqueues work to run no earlier than delay from now. The
// timer itself runs on its own goroutine so a long backlog on the main
// worker never skews the delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, work Work) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			s.Schedule(work)
		case <-s.stopCh:
		}
	}()
}

// run drains the pending work queue on the scheduler's single goroutine,
// matching the ticker/stopCh worker shape used by the operation queue.
func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case work := <-s.pending:
			s.execute(work)
		case <-s.stopCh:
			// Drain whatever is already buffered before exiting so Close
			// does not silently drop submitted work.
			for {
				select {
				case work := <-s.pending:
					s.execute(work)
				default:
					return
				}
			}
		}
	}
}

func (s *Scheduler) execute(work Work) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduled work panicked")
		}
	}()
	work()
}

// Close stops accepting new work and waits for the worker and any pending
// ScheduleAfter timers to finish.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}
