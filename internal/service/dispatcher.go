package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/humayunah/Call-Me-Reminder/internal/model"
)

// ReminderStore is the slice of the repository the dispatcher needs.
type ReminderStore interface {
	FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkCompleted(ctx context.Context, id int64, callID string) (applied bool, err error)
	MarkFailed(ctx context.Context, id int64, reason string) (applied bool, err error)
}

// CallClient places one voice call, returning the provider's call id.
type CallClient interface {
	PlaceCall(ctx context.Context, phoneNumber, title, message string) (string, error)
}

type Options struct {
	// MaxInFlight bounds concurrent call placements per tick. Default 4.
	MaxInFlight int
	// CallTimeout caps the wait for a single PlaceCall. Default 30s.
	CallTimeout time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

// statusWriteTimeout bounds the Mark writes issued after the tick context is
// already cancelled, so a shutdown abort still lands in the store.
const statusWriteTimeout = 5 * time.Second

// Dispatcher drives due reminders through their one status transition: it
// fans each FindDue batch out to the call client and records the outcome via
// the store's conditional writes. Every call-placement problem is resolved
// locally into a failed status; only the FindDue read error escapes Tick.
type Dispatcher struct {
	store  ReminderStore
	client CallClient

	maxInFlight int
	callTimeout time.Duration
	clk         clock.Clock
	log         *slog.Logger

	onCompleted func(ctx context.Context, reminderID int64, callID string, completedAt time.Time) error
}

func NewDispatcher(store ReminderStore, client CallClient, opts Options) *Dispatcher {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		store:       store,
		client:      client,
		maxInFlight: opts.MaxInFlight,
		callTimeout: opts.CallTimeout,
		clk:         opts.Clock,
		log:         opts.Logger,
	}
}

// WithCompletionHook registers a best-effort callback invoked after a
// completion commits. Hook errors are logged, never propagated.
func (d *Dispatcher) WithCompletionHook(fn func(ctx context.Context, reminderID int64, callID string, completedAt time.Time) error) *Dispatcher {
	d.onCompleted = fn
	return d
}

// Tick runs one due-check cycle: snapshot now, read the due set, dispatch it
// with bounded concurrency in due order. Tick returns only when every
// dispatch of the cycle has been issued and finished.
func (d *Dispatcher) Tick(ctx context.Context) error {
	now := d.clk.Now().UTC()

	due, err := d.store.FindDue(ctx, now)
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	d.log.Info("dispatching due reminders", "count", len(due))

	g := new(errgroup.Group)
	g.SetLimit(d.maxInFlight)
	for _, rem := range due {
		g.Go(func() error {
			d.dispatch(ctx, rem)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// dispatch places the call for one reminder and records the outcome. It never
// returns an error and never panics out.
func (d *Dispatcher) dispatch(ctx context.Context, rem model.Reminder) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic recovered", "reminder_id", rem.ID, "panic", r)
			d.markFailed(rem.ID, fmt.Sprintf("internal error while placing call: %v", r))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	callID, err := d.client.PlaceCall(callCtx, rem.PhoneNumber, rem.Title, rem.Message)
	if err != nil {
		reason := err.Error()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = fmt.Sprintf("call timed out after %s", d.callTimeout)
		case errors.Is(err, context.Canceled):
			reason = "call aborted: scheduler shutting down"
		}
		d.log.Warn("call failed", "reminder_id", rem.ID, "reason", reason)
		d.markFailed(rem.ID, reason)
		return
	}

	writeCtx, cancelWrite := detachedWriteCtx(ctx)
	defer cancelWrite()

	applied, err := d.store.MarkCompleted(writeCtx, rem.ID, callID)
	if err != nil {
		d.log.Error("failed to record completion", "reminder_id", rem.ID, "error", err)
		return
	}
	if !applied {
		// Already handled by an overlapping cycle, or deleted meanwhile.
		d.log.Debug("completion not applied", "reminder_id", rem.ID)
		return
	}

	d.log.Info("reminder completed", "reminder_id", rem.ID, "call_id", callID)

	if d.onCompleted != nil {
		if err := d.onCompleted(writeCtx, rem.ID, callID, d.clk.Now().UTC()); err != nil {
			d.log.Warn("completion hook failed", "reminder_id", rem.ID, "error", err)
		}
	}
}

func (d *Dispatcher) markFailed(id int64, reason string) {
	ctx, cancel := detachedWriteCtx(context.Background())
	defer cancel()

	applied, err := d.store.MarkFailed(ctx, id, reason)
	if err != nil {
		d.log.Error("failed to record failure", "reminder_id", id, "error", err)
		return
	}
	if !applied {
		d.log.Debug("failure not applied", "reminder_id", id)
		return
	}
	d.log.Info("reminder failed", "reminder_id", id, "reason", reason)
}

// detachedWriteCtx survives cancellation of the tick context so outcomes of
// aborted calls are still persisted, with a bound of its own.
func detachedWriteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
}
