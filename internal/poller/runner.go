// internal/poller/runner.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
)

// ErrSchedulerStopped is returned by Resume once the poll task has exited.
var ErrSchedulerStopped = errors.New("poller: scheduler stopped")

// Cycle returns the acquisition/publish step driven by the Scheduler.
// Partial documents are dropped, never published.
func (p *Poller) Cycle(sink Sink) func(context.Context) {
	return func(ctx context.Context) {
		doc := p.PollOnce(ctx)
		if doc.Partial {
			return
		}
		if err := sink.Publish(doc); err != nil {
			p.log.Warn("publish failed", "err", err)
		}
	}
}

// Scheduler is the poll task: a timer posts ticks into an inbox and a single
// loop runs one cycle per tick. At most one cycle is in flight.
type Scheduler struct {
	interval time.Duration
	cycle    func(context.Context)
	log      *slog.Logger
	metrics  *metrics.Metrics

	inbox chan struct{}

	enabled atomic.Bool
	running atomic.Bool
	stopped atomic.Bool

	// held for the duration of a cycle; Pause waits on it
	cycleMu sync.Mutex

	timerMu  sync.Mutex
	stopTick chan struct{} // nil while the timer is disarmed
}

// NewScheduler creates an enabled scheduler. The timer is armed by Run.
func NewScheduler(interval time.Duration, cycle func(context.Context), log *slog.Logger, m *metrics.Metrics) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cycle == nil {
		return nil, errors.New("poller: cycle required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		interval: interval,
		cycle:    cycle,
		log:      log.With("component", "scheduler"),
		metrics:  m,
		inbox:    make(chan struct{}, 1),
	}
	s.enabled.Store(true)
	return s, nil
}

// Run arms the timer and blocks on the inbox until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		s.stopped.Store(true)
		s.disarm()
	}()

	if s.enabled.Load() {
		if err := s.arm(); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.inbox:
			s.runCycle(ctx)
		}
	}
}

// Fire is the timer callback. A fire while a cycle runs is skipped, not queued.
func (s *Scheduler) Fire() {
	if s.running.Load() {
		s.log.Debug("polling already in progress, waiting for next cycle")
		s.metrics.CycleSkipped("skipped_busy")
		return
	}

	select {
	case s.inbox <- struct{}{}:
	default:
		// a tick is already pending
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.enabled.Load() {
		s.metrics.CycleSkipped("skipped_paused")
		return
	}

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	// Pause may have landed while we waited for the lock.
	if !s.enabled.Load() {
		s.metrics.CycleSkipped("skipped_paused")
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		s.metrics.CycleSkipped("skipped_busy")
		return
	}
	defer s.running.Store(false)

	s.log.Debug("resuming poll cycle")
	s.cycle(ctx)

	// a tick posted before running was set overlapped this cycle
	select {
	case <-s.inbox:
		s.metrics.CycleSkipped("skipped_busy")
	default:
	}
}

// Pause stops the timer, marks polling non-schedulable and waits for an
// in-flight cycle to vacate. After Pause returns nil no cycle is running and
// none will start until Resume.
func (s *Scheduler) Pause(ctx context.Context) error {
	s.enabled.Store(false)
	s.disarm()

	// drop a tick that raced with the timer stop
	select {
	case <-s.inbox:
	default:
	}

	vacated := make(chan struct{})
	go func() {
		s.cycleMu.Lock()
		s.cycleMu.Unlock()
		close(vacated)
	}()

	select {
	case <-vacated:
		s.log.Info("polling paused")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume re-enables polling and re-arms the timer.
func (s *Scheduler) Resume() error {
	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	s.enabled.Store(true)
	if err := s.arm(); err != nil {
		return err
	}
	s.log.Info("polling resumed")
	return nil
}

// Enabled reports whether cycles may start.
func (s *Scheduler) Enabled() bool { return s.enabled.Load() }

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Armed reports whether the timer is active.
func (s *Scheduler) Armed() bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.stopTick != nil
}

// ---- timer ----

func (s *Scheduler) arm() error {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.stopped.Load() {
		return ErrSchedulerStopped
	}
	if s.stopTick != nil {
		return nil
	}

	stop := make(chan struct{})
	s.stopTick = stop
	go s.tick(stop)
	return nil
}

func (s *Scheduler) disarm() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Scheduler) tick(stop <-chan struct{}) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.Fire()
		}
	}
}
