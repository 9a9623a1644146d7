package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"

	"github.com/humayunah/Call-Me-Reminder/internal/model"
	"github.com/humayunah/Call-Me-Reminder/internal/repo"
	"github.com/humayunah/Call-Me-Reminder/internal/scheduler"
)

var phoneRe = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

type Handler struct {
	repo  repo.ReminderRepository
	sched *scheduler.Scheduler
	clk   clock.Clock
}

func NewHandler(r repo.ReminderRepository, s *scheduler.Scheduler, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.New()
	}
	return &Handler{repo: r, sched: s, clk: clk}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

type reminderPayload struct {
	Title       *string    `json:"title"`
	Message     *string    `json:"message"`
	PhoneNumber *string    `json:"phone_number"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Timezone    *string    `json:"timezone"`
}

func (h *Handler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	var p reminderPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if p.Title == nil || p.Message == nil || p.PhoneNumber == nil || p.ScheduledAt == nil || p.Timezone == nil {
		writeError(w, http.StatusBadRequest, "title, message, phone_number, scheduled_at and timezone are required")
		return
	}
	if detail := validateFields(p); detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	scheduledAt := p.ScheduledAt.UTC()
	if !scheduledAt.After(h.clk.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "Scheduled time must be in the future")
		return
	}

	rem := model.Reminder{
		Title:       *p.Title,
		Message:     *p.Message,
		PhoneNumber: *p.PhoneNumber,
		ScheduledAt: scheduledAt,
		Timezone:    *p.Timezone,
	}
	if err := h.repo.Create(r.Context(), &rem); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create reminder")
		return
	}

	writeJSON(w, http.StatusCreated, rem)
}

func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	items, err := h.repo.List(r.Context(), repo.ListFilter{
		Status:    q.Get("status"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reminders")
		return
	}

	if items == nil {
		items = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}

	rem, err := h.repo.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Reminder not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load reminder")
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

func (h *Handler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}

	var p reminderPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if detail := validateFields(p); detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	params := repo.UpdateParams{
		Title:       p.Title,
		Message:     p.Message,
		PhoneNumber: p.PhoneNumber,
		Timezone:    p.Timezone,
	}
	if p.ScheduledAt != nil {
		scheduledAt := p.ScheduledAt.UTC()
		if !scheduledAt.After(h.clk.Now().UTC()) {
			writeError(w, http.StatusBadRequest, "Scheduled time must be in the future")
			return
		}
		params.ScheduledAt = &scheduledAt
	}

	rem, err := h.repo.Update(r.Context(), id, params)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "Reminder not found")
		return
	case errors.Is(err, repo.ErrNotEditable):
		writeError(w, http.StatusBadRequest, "Cannot update a reminder that has already been processed")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to update reminder")
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

func (h *Handler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}

	err := h.repo.Delete(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Reminder not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete reminder")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeSchedulerState(w, h.sched)
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeSchedulerState(w, h.sched)
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeSchedulerState(w, h.sched)
}

// validateFields checks whichever fields are present; required-ness is the
// caller's concern (create requires all, update none).
func validateFields(p reminderPayload) string {
	if p.Title != nil {
		if n := utf8.RuneCountInString(*p.Title); n < 1 || n > 100 {
			return "Title must be between 1 and 100 characters"
		}
	}
	if p.Message != nil && *p.Message == "" {
		return "Message must not be empty"
	}
	if p.PhoneNumber != nil && !phoneRe.MatchString(*p.PhoneNumber) {
		return "Phone number must be in E.164 format (e.g., +14155552671)"
	}
	if p.Timezone != nil && *p.Timezone == "" {
		return "Timezone must not be empty"
	}
	return ""
}

func reminderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Reminder not found")
		return 0, false
	}
	return id, true
}

func writeSchedulerState(w http.ResponseWriter, s *scheduler.Scheduler) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.IsRunning(),
		"state":   s.State().String(),
	})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
