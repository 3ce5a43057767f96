package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// CycleFunc runs one probe cycle.
type CycleFunc func(ctx context.Context)

// Scheduler triggers probe cycles immediately and then at a fixed interval.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Scheduler = (*scheduler)(nil)

type scheduler struct {
	log      logrus.FieldLogger
	interval time.Duration
	cycle    CycleFunc
	sem      *semaphore.Weighted

	// maxWaiting caps ticks parked on sem: one per concurrency slot.
	maxWaiting int64
	waiting    atomic.Int64
	skipped    atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. maxConcurrent bounds how many cycles run at once.
// A tick arriving while every slot is busy waits for a free slot, at most one
// waiting tick per slot; further ticks are skipped with a warning. Zero means
// no bound.
func New(
	log logrus.FieldLogger,
	interval time.Duration,
	maxConcurrent int,
	cycle CycleFunc,
) Scheduler {
	var sem *semaphore.Weighted
	if maxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrent))
	}

	return &scheduler{
		log:        log.WithField("component", "scheduler"),
		interval:   interval,
		cycle:      cycle,
		sem:        sem,
		maxWaiting: int64(maxConcurrent),
	}
}

// Start fires the first cycle right away and then one per interval until ctx
// is cancelled or Stop is called.
func (s *scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.log.WithField("interval", s.interval.String()).Info("Starting scheduler")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.trigger(runCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.trigger(runCtx)
			case <-runCtx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops triggering cycles and waits for running ones to finish. Ticks
// still waiting for a free slot are dropped.
func (s *scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	s.wg.Wait()

	s.log.Info("Scheduler stopped")

	return nil
}

func (s *scheduler) trigger(ctx context.Context) {
	if s.sem == nil || s.sem.TryAcquire(1) {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.run(ctx)
		}()

		return
	}

	if s.waiting.Add(1) > s.maxWaiting {
		s.waiting.Add(-1)
		s.skipped.Add(1)

		s.log.WithField("max_concurrent", s.maxWaiting).
			Warn("Previous probe cycles still running, skipping tick")

		return
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		err := s.sem.Acquire(ctx, 1)

		s.waiting.Add(-1)

		if err != nil {
			s.log.Debug("Dropping queued cycle on shutdown")

			return
		}

		s.run(ctx)
	}()
}

// run executes one cycle in an acquired slot.
func (s *scheduler) run(ctx context.Context) {
	if s.sem != nil {
		defer s.sem.Release(1)
	}

	// Started cycles run to completion.
	s.cycle(context.WithoutCancel(ctx))
}
