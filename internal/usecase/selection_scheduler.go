package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

var (
	ErrSchedulerRunning = errors.New("scheduler already running")
	ErrSchedulerStopped = errors.New("scheduler not running")
	ErrTriggerPending   = errors.New("selection trigger already pending")
)

// Selector is the part of PairSelector the scheduler drives.
type Selector interface {
	SelectPairs(ctx context.Context, monitor domrepo.TradeMonitor, memory domrepo.PortfolioMemory, targetCount int) (*models.PairSelectionResult, error)
	ApplyOutcomeLearning(ctx context.Context) (int, error)
	State() models.PipelineState
}

// SelectionScheduler runs the selector on a fixed interval. Runs never
// overlap: a slow run delays the next tick. Stop interrupts the wait between
// ticks but lets an in-flight run finish.
type SelectionScheduler struct {
	sel        Selector
	monitor    domrepo.TradeMonitor
	memory     domrepo.PortfolioMemory
	interval   time.Duration
	runOnStart bool
	l          *applogger.Logger

	mu      sync.Mutex
	status  models.SchedulerStatus
	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewSelectionScheduler builds a stopped scheduler.
func NewSelectionScheduler(sel Selector, monitor domrepo.TradeMonitor, memory domrepo.PortfolioMemory, interval time.Duration, runOnStart bool, l *applogger.Logger) *SelectionScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SelectionScheduler{
		sel:        sel,
		monitor:    monitor,
		memory:     memory,
		interval:   interval,
		runOnStart: runOnStart,
		l:          l.Component("scheduler"),
		status:     models.SchedulerStatus{Interval: interval},
	}
}

// Start launches the loop. The first run happens immediately when
// runOnStart is set.
func (s *SelectionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return ErrSchedulerRunning
	}
	s.trigger = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.status.Running = true
	s.status.StartedAt = time.Now().UTC()
	s.status.TriggerPending = false

	first := s.interval
	if s.runOnStart {
		first = 0
	}
	s.status.NextRunAt = s.status.StartedAt.Add(first)

	go s.loop(ctx, first, s.trigger, s.stop, s.done)
	s.l.Info("scheduler started", applogger.Duration("interval_ms", s.interval), applogger.Bool("run_on_start", s.runOnStart))
	return nil
}

// Stop ends the loop and waits for an in-flight run, or ctx.
func (s *SelectionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.status.Running {
		s.mu.Unlock()
		return nil
	}
	s.status.Running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerImmediateSelection queues one run ahead of the timer. Only one
// trigger can be pending at a time.
func (s *SelectionScheduler) TriggerImmediateSelection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Running {
		return ErrSchedulerStopped
	}
	select {
	case s.trigger <- struct{}{}:
		s.status.TriggerPending = true
		return nil
	default:
		return ErrTriggerPending
	}
}

// GetStatus returns a snapshot including the selector's pipeline state.
func (s *SelectionScheduler) GetStatus() models.SchedulerStatus {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.PipelineState = s.sel.State()
	return st
}

func (s *SelectionScheduler) loop(ctx context.Context, first time.Duration, trigger, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			return
		case <-stop:
			return
		case <-trigger:
			s.mu.Lock()
			s.status.TriggerPending = false
			s.mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		s.runOnce(ctx)
		timer.Reset(s.interval)
		s.mu.Lock()
		s.status.NextRunAt = time.Now().UTC().Add(s.interval)
		s.mu.Unlock()
	}
}

func (s *SelectionScheduler) markStopped() {
	s.mu.Lock()
	s.status.Running = false
	s.mu.Unlock()
}

// runOnce applies outcome learning, then selects. The run itself is not
// cancelled by Stop.
func (s *SelectionScheduler) runOnce(parent context.Context) {
	ctx := context.WithoutCancel(parent)
	start := time.Now()

	s.mu.Lock()
	s.status.InFlight = true
	s.mu.Unlock()

	if n, err := s.sel.ApplyOutcomeLearning(ctx); err != nil {
		s.l.Error("outcome learning failed", applogger.Error(err))
	} else if n > 0 {
		s.l.Info("outcome learning applied", applogger.Int("selections", n))
	}

	res, err := s.sel.SelectPairs(ctx, s.monitor, s.memory, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.InFlight = false
	s.status.LastRunAt = start.UTC()
	s.status.LastDuration = time.Since(start)
	s.status.RunCount++
	if err != nil {
		s.status.FailureCount++
		s.status.LastError = err.Error()
		s.l.Error("selection run failed", applogger.Error(err))
		return
	}
	s.status.LastError = ""
	s.status.LastSelectionID = res.SelectionID
}
