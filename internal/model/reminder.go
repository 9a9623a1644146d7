package model

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known reminder statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Reminder is the unit of work: one scheduled phone call.
//
// ScheduledAt is an absolute UTC instant; Timezone is kept only so the UI can
// redisplay the time the way the user entered it. CallID is set on a
// successful call, ErrorMessage on a failed one; a scheduled reminder carries
// neither.
type Reminder struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	PhoneNumber  string    `json:"phone_number"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Timezone     string    `json:"timezone"`
	Status       Status    `json:"status"`
	CallID       *string   `json:"call_id"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
