// Package scheduler runs the cycle on a fixed interval and on demand, never
// more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRunning is returned by RunOnce while another cycle is in flight.
var ErrAlreadyRunning = errors.New("cycle already running")

// ErrStopped is returned for background starts once RunForever has returned.
var ErrStopped = errors.New("scheduler stopped")

// CycleFunc runs one cycle.
type CycleFunc func(ctx context.Context) error

// Trigger is the outcome of an on-demand request.
type Trigger struct {
	Started   bool      `json:"started"`
	StartedAt time.Time `json:"started_at"`
	// Stopped is set when the scheduler is shutting down and accepts no
	// new cycles.
	Stopped bool `json:"stopped,omitempty"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running     bool          `json:"running"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	LastAttempt time.Time     `json:"last_attempt,omitzero"`
	LastSuccess time.Time     `json:"last_success,omitzero"`
	LastError   string        `json:"last_error,omitempty"`
	Interval    time.Duration `json:"interval_ns"`
	NextRun     time.Time     `json:"next_run,omitzero"`
}

// Scheduler owns the cycle lifecycle.
type Scheduler struct {
	cycle    CycleFunc
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu          sync.Mutex
	base        context.Context
	running     bool
	startedAt   time.Time
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	nextRun     time.Time
	stopped     bool
	wg          sync.WaitGroup
}

// New creates a scheduler that runs cycle every interval.
func New(cycle CycleFunc, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		cycle:    cycle,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		base:     context.Background(),
	}
}

// RunForever runs a cycle immediately and then every interval until ctx is
// cancelled. A tick that lands while a cycle is still running is skipped.
// It waits for in-flight cycles before returning.
func (s *Scheduler) RunForever(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.stopped = false
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.wg.Wait()
	}()

	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.start(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.start(ctx, "interval")
		}
	}
}

// TriggerNow starts a cycle in the background unless one is already
// running, in which case it reports the running cycle's start time. After
// RunForever has returned it starts nothing and reports Stopped.
func (s *Scheduler) TriggerNow() Trigger {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	return s.start(ctx, "manual")
}

// RunOnce runs a cycle synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	startedAt, err := s.begin(false)
	if err != nil {
		return fmt.Errorf("%w since %s", err, startedAt.Format(time.RFC3339))
	}
	return s.execute(ctx, startedAt, "once")
}

// Wait blocks until background cycles started by TriggerNow finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Status reports the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:     s.running,
		LastAttempt: s.lastAttempt,
		LastSuccess: s.lastSuccess,
		Interval:    s.interval,
		NextRun:     s.nextRun,
	}
	if s.running {
		st.StartedAt = s.startedAt
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// CheckReadiness fails until a cycle has succeeded.
func (s *Scheduler) CheckReadiness(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSuccess.IsZero() {
		return errors.New("no successful cycle yet")
	}
	return nil
}

func (s *Scheduler) start(ctx context.Context, trigger string) Trigger {
	startedAt, err := s.begin(true)
	if errors.Is(err, ErrStopped) {
		s.logger.Info("scheduler stopped, ignoring trigger", "trigger", trigger)
		return Trigger{Stopped: true}
	}
	if err != nil {
		s.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		s.logger.Info("cycle already running, skipping", "trigger", trigger, "started_at", startedAt)
		return Trigger{Started: false, StartedAt: startedAt}
	}
	go func() {
		defer s.wg.Done()
		_ = s.execute(ctx, startedAt, trigger)
	}()
	return Trigger{Started: true, StartedAt: startedAt}
}

// begin claims the single running slot. A tracked cycle joins the wait
// group under the same lock RunForever takes to stop, so no Add can race
// its final Wait.
func (s *Scheduler) begin(track bool) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track && s.stopped {
		return time.Time{}, ErrStopped
	}
	if s.running {
		return s.startedAt, ErrAlreadyRunning
	}
	s.running = true
	s.startedAt = s.clock.Now().UTC()
	s.lastAttempt = s.startedAt
	if track {
		s.wg.Add(1)
	}
	return s.startedAt, nil
}

func (s *Scheduler) execute(ctx context.Context, startedAt time.Time, trigger string) (err error) {
	s.metrics.CycleRunning.Set(1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			s.metrics.CyclesTotal.WithLabelValues("panic").Inc()
			s.logger.Error("cycle panicked", "trigger", trigger, "panic", r)
		}
		s.finish(err)
		s.metrics.CycleRunning.Set(0)
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	s.logger.Info("cycle started", "trigger", trigger, "started_at", startedAt)
	if err = s.cycle(ctx); err != nil {
		s.metrics.CyclesTotal.WithLabelValues("error").Inc()
		s.logger.Error("cycle failed", "trigger", trigger, "error", err)
		return err
	}
	s.metrics.CyclesTotal.WithLabelValues("success").Inc()
	return nil
}

func (s *Scheduler) finish(err error) {
	now := s.clock.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastErr = err
	s.nextRun = now.Add(s.interval)
	if err == nil {
		s.lastSuccess = now
		s.metrics.LastSuccessTimestamp.Set(float64(now.Unix()))
	}
}
