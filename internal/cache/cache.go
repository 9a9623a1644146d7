package cache

import (
	"context"
	"time"
)

// CompletionCache records successfully delivered reminders. Writes are
// best-effort; a cache failure never fails the dispatch.
type CompletionCache interface {
	StoreCompleted(ctx context.Context, reminderID int64, callID string, completedAt time.Time) error
}
