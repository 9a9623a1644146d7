package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the loop's lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type Config struct {
	// Interval between due-check ticks. Default 30s.
	Interval time.Duration
	// ShutdownGrace is how long Stop waits for the in-flight tick to drain
	// before cancelling it. Default 10s.
	ShutdownGrace time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Scheduler drives a tick function on a fixed interval from a single
// goroutine. Ticks run synchronously in the loop, so a new tick never starts
// before the previous one has finished. The scheduler holds no durable state:
// whatever the tick reads from the store after a restart is the truth.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	clk      clock.Clock
	log      *slog.Logger
	tickFn   func(context.Context) error

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

func New(cfg Config, tickFn func(context.Context) error) (*Scheduler, error) {
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if cfg.Interval < 0 {
		return nil, errors.New("interval must not be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		interval: cfg.Interval,
		grace:    cfg.ShutdownGrace,
		clk:      cfg.Clock,
		log:      cfg.Logger,
		tickFn:   tickFn,
	}, nil
}

// Start transitions Stopped -> Running and begins ticking, with an immediate
// first tick. It reports false if the scheduler is not currently stopped.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.stop, s.done)

	return true
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", s.interval.String())

	s.safeTick(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

// Stop transitions Running -> Stopping -> Stopped. No new tick starts once
// Stopping begins; the in-flight tick gets up to the shutdown grace to drain,
// after which its context is cancelled so stuck calls abort.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}

	s.log.Info("scheduler stopping", "grace", s.grace.String())

	close(s.stop)

	graceTimer := s.clk.Timer(s.grace)
	defer graceTimer.Stop()

	select {
	case <-s.done:
	case <-graceTimer.C:
		s.log.Warn("shutdown grace elapsed, aborting in-flight tick")
		s.cancel()
		<-s.done
	}

	s.cancel()
	s.state.Store(int32(StateStopped))

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := s.clk.Now()
	if err := s.tickFn(ctx); err != nil {
		// The store read failed; the next tick retries.
		s.log.Error("scheduler tick failed", "error", err)
		return
	}
	s.log.Debug("scheduler tick completed", "duration_ms", s.clk.Since(start).Milliseconds())
}
