package repo

import (
	"context"
	"errors"
	"time"

	"github.com/humayunah/Call-Me-Reminder/internal/model"
)

var (
	// ErrNotFound is returned when no reminder exists with the given id.
	ErrNotFound = errors.New("reminder not found")
	// ErrNotEditable is returned when an update targets a reminder that has
	// already been processed (completed or failed).
	ErrNotEditable = errors.New("reminder has already been processed")
)

// ListFilter narrows and orders a List call. Zero value lists everything
// ordered by scheduled_at ascending.
type ListFilter struct {
	// Status filters by exact status; empty or "all" disables the filter.
	Status string
	// Search matches case-insensitively against title and message.
	Search string
	// SortBy is one of scheduled_at, created_at, updated_at, title, status.
	// Unknown values fall back to scheduled_at.
	SortBy string
	// SortOrder is "asc" (default) or "desc".
	SortOrder string
}

// UpdateParams carries a partial update; nil fields are left untouched.
type UpdateParams struct {
	Title       *string
	Message     *string
	PhoneNumber *string
	ScheduledAt *time.Time
	Timezone    *string
}

// ReminderRepository is the storage contract. The CRUD half serves the HTTP
// API; FindDue and the two Mark operations serve the dispatcher.
//
// MarkCompleted and MarkFailed are conditional writes: they apply only while
// the reminder is still scheduled and report applied=false otherwise. That
// conditional is the sole guard against double-dispatch when ticks overlap,
// so implementations must make it a single atomic update.
type ReminderRepository interface {
	Create(ctx context.Context, rem *model.Reminder) error
	GetByID(ctx context.Context, id int64) (model.Reminder, error)
	List(ctx context.Context, f ListFilter) ([]model.Reminder, error)
	Update(ctx context.Context, id int64, p UpdateParams) (model.Reminder, error)
	Delete(ctx context.Context, id int64) error

	FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error)
	MarkCompleted(ctx context.Context, id int64, callID string) (applied bool, err error)
	MarkFailed(ctx context.Context, id int64, reason string) (applied bool, err error)
}
