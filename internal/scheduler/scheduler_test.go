package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("tickFn must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New(Config{Interval: 100 * time.Millisecond}, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})

	t.Run("interval must not be negative", func(t *testing.T) {
		t.Parallel()

		s, err := New(Config{Interval: -time.Second}, func(context.Context) error { return nil })
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s, err := New(Config{}, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if s.interval != 30*time.Second {
		t.Fatalf("expected default interval 30s, got %v", s.interval)
	}
	if s.grace != 10*time.Second {
		t.Fatalf("expected default grace 10s, got %v", s.grace)
	}
}

func TestScheduler_StartStop_Basics(t *testing.T) {
	var calls atomic.Int64

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.State() != StateStopped {
		t.Fatalf("expected state stopped initially, got %v", s.State())
	}
	if s.IsRunning() {
		t.Fatalf("expected scheduler not running initially")
	}

	// Start should succeed first time.
	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}

	if s.State() != StateRunning || !s.IsRunning() {
		t.Fatalf("expected state running after Start(), got %v", s.State())
	}

	// Start should fail when already running.
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	// Wait for at least one tick (there is an immediate tick on Start()).
	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	// Stop should succeed first time.
	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.State() != StateStopped {
		t.Fatalf("expected state stopped after Stop(), got %v", s.State())
	}

	// Stop should fail when already stopped.
	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestScheduler_DoesNotTickAfterStop(t *testing.T) {
	var calls atomic.Int64

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	// Wait for a couple ticks so we have a baseline.
	waitForAtLeast(t, &calls, 2, 750*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
	afterStop := calls.Load()

	// Sleep longer than interval to ensure no further ticks occur.
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != afterStop {
		t.Fatalf("expected no ticks after Stop; before=%d after=%d", afterStop, calls.Load())
	}
}

func TestScheduler_ImmediateTickOnStart(t *testing.T) {
	var calls atomic.Int64

	// Very large interval: any observed tick must be the immediate one.
	s, err := New(Config{Interval: 10 * time.Second}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)
}

func TestScheduler_MockClockDrivesTicks(t *testing.T) {
	mock := clock.NewMock()
	var calls atomic.Int64

	s, err := New(Config{Interval: 30 * time.Second, Clock: mock}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	// The immediate tick does not depend on the clock.
	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	// Let the loop goroutine install its ticker before advancing.
	time.Sleep(10 * time.Millisecond)

	mock.Add(30 * time.Second)
	waitForAtLeast(t, &calls, 2, 500*time.Millisecond)

	mock.Add(60 * time.Second)
	waitForAtLeast(t, &calls, 3, 500*time.Millisecond)

	// Stop waits on the grace timer of the same mock clock; the loop is idle,
	// so done closes without advancing it.
	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
}

func TestScheduler_PanicInTickIsRecoveredAndContinues(t *testing.T) {
	var calls atomic.Int64
	var panicked atomic.Bool

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		// First call panics, subsequent calls increment.
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	// If the panic is recovered properly, the loop keeps ticking afterwards.
	waitForAtLeast(t, &calls, 1, 750*time.Millisecond)
}

func TestScheduler_TickErrorDoesNotStopLoop(t *testing.T) {
	var calls atomic.Int64

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return context.DeadlineExceeded
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	// Errors are logged and retried on the next tick.
	waitForAtLeast(t, &calls, 3, 750*time.Millisecond)
}

func TestScheduler_StartStopMultipleTimes(t *testing.T) {
	var calls atomic.Int64

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if ok := s.Start(); !ok {
			t.Fatalf("iteration %d: expected Start() true", i)
		}

		waitForAtLeast(t, &calls, 1, 750*time.Millisecond)

		if ok := s.Stop(); !ok {
			t.Fatalf("iteration %d: expected Stop() true", i)
		}

		// Reset counter for next iteration to make the check clearer.
		calls.Store(0)
	}
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	tickStarted := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	s, err := New(Config{Interval: time.Hour, ShutdownGrace: 5 * time.Second}, func(ctx context.Context) error {
		close(tickStarted)
		<-release
		finished.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	<-tickStarted

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
	if !finished.Load() {
		t.Fatalf("Stop must wait for the in-flight tick to drain")
	}
}

func TestScheduler_GraceElapsedAbortsInFlightTick(t *testing.T) {
	tickStarted := make(chan struct{})
	var aborted atomic.Bool

	s, err := New(Config{Interval: time.Hour, ShutdownGrace: 20 * time.Millisecond}, func(ctx context.Context) error {
		close(tickStarted)
		// Simulates a stuck provider call that only ends on cancellation.
		<-ctx.Done()
		aborted.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	<-tickStarted

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
	if !aborted.Load() {
		t.Fatalf("expected the stuck tick to be aborted after the grace period")
	}
	if s.State() != StateStopped {
		t.Fatalf("expected state stopped, got %v", s.State())
	}
}

func TestScheduler_TickFnReceivesCancelableContext(t *testing.T) {
	// The tick function must see a context that dies with the scheduler, so
	// in-flight calls can be aborted on shutdown.
	var capturedMu sync.Mutex
	var captured context.Context

	s, err := New(Config{Interval: 10 * time.Millisecond}, func(ctx context.Context) error {
		capturedMu.Lock()
		if captured == nil {
			captured = ctx
		}
		capturedMu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	// Wait until we captured a context.
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		capturedMu.Lock()
		got := captured
		capturedMu.Unlock()

		if got != nil {
			break
		}
		if time.Now().After(deadline) {
			_ = s.Stop()
			t.Fatalf("did not capture tick context in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	capturedMu.Lock()
	ctx := captured
	capturedMu.Unlock()

	select {
	case <-ctx.Done():
		// ok
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected tick context to be canceled after Stop()")
	}
}

// waitForAtLeast waits until calls >= n or fails the test after timeout.
// Uses polling to avoid test flakes across CI.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if calls.Load() >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
