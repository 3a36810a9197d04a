// Package scheduler runs the periodic maintenance loop: expiring unacked
// reservations, releasing dependency-blocked tasks, sweeping orphaned waiting
// flags, and pruning old activity logs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/dispatch"
	"github.com/opensourcewtf/waaah/internal/store"
	"github.com/opensourcewtf/waaah/internal/task"
)

const (
	defaultTickInterval = time.Second
	defaultLogRetention = 7 * 24 * time.Hour

	// pruneInterval spaces out the log DELETE scans; there is no need to run
	// them every tick.
	pruneInterval = time.Hour

	// staleWaiterThreshold is how old a persisted waiting flag must be before
	// the sweep treats it as orphaned by a crashed wait.
	staleWaiterThreshold = 2 * time.Hour
)

// Scheduler drives the maintenance tick. Each tick's steps are independent;
// one failing step is logged and skipped without aborting the others.
type Scheduler struct {
	tasks    *task.Service
	dispatch *dispatch.Coordinator
	store    store.Store
	logger   *logger.Logger

	interval   time.Duration
	retention  time.Duration
	waiterDrop time.Duration
	lastPrune  time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the 1 s tick, mainly for tests.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLogRetention overrides the 7 day activity log retention.
func WithLogRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

// WithWaiterDropThreshold overrides the stale waiting flag sweep threshold.
func WithWaiterDropThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.waiterDrop = d }
}

// New creates a scheduler.
func New(tasks *task.Service, coord *dispatch.Coordinator, st store.Store, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:     tasks,
		dispatch:  coord,
		store:     st,
		logger:    log,
		interval:   defaultTickInterval,
		retention:  defaultLogRetention,
		waiterDrop: staleWaiterThreshold,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop terminates the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one maintenance pass.
func (s *Scheduler) Tick(ctx context.Context) {
	if expired, err := s.tasks.ExpireAcks(ctx); err != nil {
		s.logger.Error("ack expiry failed", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("expired unacked reservations", zap.Int("count", expired))
	}

	if released, err := s.tasks.UnblockReady(ctx); err != nil {
		s.logger.Error("dependency unblock failed", zap.Error(err))
	} else if released > 0 {
		s.logger.Info("released blocked tasks", zap.Int("count", released))
	}

	if err := s.dispatch.SweepWaitingFlags(ctx, s.waiterDrop); err != nil {
		s.logger.Error("waiting flag sweep failed", zap.Error(err))
	}

	if time.Since(s.lastPrune) >= pruneInterval {
		s.lastPrune = time.Now()
		pruned, err := s.store.PruneLogs(ctx, time.Now().Add(-s.retention))
		if err != nil {
			s.logger.Error("log prune failed", zap.Error(err))
		} else if pruned > 0 {
			s.logger.Info("pruned activity logs", zap.Int64("count", pruned))
		}
	}
}
