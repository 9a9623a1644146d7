package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/humayunah/Call-Me-Reminder/internal/model"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Open opens the database named by url. postgres:// and postgresql:// URLs
// use the pgx driver; anything else is treated as a SQLite path, optionally
// prefixed with sqlite:// (":memory:" works for tests).
func Open(url string) (*sql.DB, Dialect, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return db, DialectPostgres, nil
	}

	path := strings.TrimPrefix(url, "sqlite://")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one pooled connection also keeps an
	// in-memory database from being silently duplicated per connection.
	db.SetMaxOpenConns(1)
	return db, DialectSQLite, nil
}

// EnsureSchema creates the reminders table and the due-scan index if they do
// not exist yet. Timestamps are stored as epoch milliseconds so the due
// comparison is identical in both dialects.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if dialect == DialectPostgres {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS reminders (
				%s,
				title         TEXT NOT NULL,
				message       TEXT NOT NULL,
				phone_number  TEXT NOT NULL,
				scheduled_at  BIGINT NOT NULL,
				timezone      TEXT NOT NULL,
				status        TEXT NOT NULL DEFAULT 'scheduled',
				call_id       TEXT,
				error_message TEXT,
				created_at    BIGINT NOT NULL,
				updated_at    BIGINT NOT NULL
			)`, idCol),
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (status, scheduled_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SQLReminderRepo implements ReminderRepository over database/sql for both
// supported dialects. Queries are written with $n placeholders in textual
// order and rebound to ? for SQLite.
type SQLReminderRepo struct {
	db      *sql.DB
	dialect Dialect
	clk     clock.Clock
}

func NewSQLReminderRepo(db *sql.DB, dialect Dialect, clk clock.Clock) *SQLReminderRepo {
	if clk == nil {
		clk = clock.New()
	}
	return &SQLReminderRepo{db: db, dialect: dialect, clk: clk}
}

const reminderColumns = `id, title, message, phone_number, scheduled_at, timezone, status, call_id, error_message, created_at, updated_at`

func (r *SQLReminderRepo) Create(ctx context.Context, rem *model.Reminder) error {
	now := r.clk.Now().UTC()

	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO reminders (title, message, phone_number, scheduled_at, timezone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, $7)
		RETURNING id
	`),
		rem.Title,
		rem.Message,
		rem.PhoneNumber,
		rem.ScheduledAt.UnixMilli(),
		rem.Timezone,
		now.UnixMilli(),
		now.UnixMilli(),
	).Scan(&rem.ID)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}

	rem.Status = model.StatusScheduled
	rem.CallID = nil
	rem.ErrorMessage = nil
	rem.ScheduledAt = rem.ScheduledAt.UTC().Truncate(time.Millisecond)
	rem.CreatedAt = now.Truncate(time.Millisecond)
	rem.UpdatedAt = now.Truncate(time.Millisecond)
	return nil
}

func (r *SQLReminderRepo) GetByID(ctx context.Context, id int64) (model.Reminder, error) {
	row := r.db.QueryRowContext(ctx, r.q(`
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE id = $1
	`), id)

	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reminder{}, ErrNotFound
	}
	if err != nil {
		return model.Reminder{}, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return rem, nil
}

var sortColumns = map[string]string{
	"scheduled_at": "scheduled_at",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"title":        "title",
	"status":       "status",
}

func (r *SQLReminderRepo) List(ctx context.Context, f ListFilter) ([]model.Reminder, error) {
	var (
		conds []string
		args  []any
	)

	if f.Status != "" && f.Status != "all" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
		conds = append(conds, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(message) LIKE $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + reminderColumns + ` FROM reminders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "scheduled_at"
	}
	dir := "ASC"
	if f.SortOrder == "desc" {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir)

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

func (r *SQLReminderRepo) Update(ctx context.Context, id int64, p UpdateParams) (model.Reminder, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Message != nil {
		add("message", *p.Message)
	}
	if p.PhoneNumber != nil {
		add("phone_number", *p.PhoneNumber)
	}
	if p.ScheduledAt != nil {
		add("scheduled_at", p.ScheduledAt.UnixMilli())
	}
	if p.Timezone != nil {
		add("timezone", *p.Timezone)
	}
	add("updated_at", r.clk.Now().UTC().UnixMilli())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE reminders
		SET %s
		WHERE id = $%d AND status = 'scheduled'
	`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return model.Reminder{}, fmt.Errorf("update reminder %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.Reminder{}, err
	}
	if n == 0 {
		// Either the row is gone or it already left the scheduled state.
		if _, err := r.GetByID(ctx, id); err != nil {
			return model.Reminder{}, err
		}
		return model.Reminder{}, ErrNotEditable
	}

	return r.GetByID(ctx, id)
}

func (r *SQLReminderRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM reminders WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLReminderRepo) FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, id ASC
	`), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}
	defer rows.Close()

	return collectReminders(rows)
}

func (r *SQLReminderRepo) MarkCompleted(ctx context.Context, id int64, callID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE reminders
		SET status = 'completed',
		    call_id = $1,
		    error_message = NULL,
		    updated_at = $2
		WHERE id = $3 AND status = 'scheduled'
	`), callID, r.clk.Now().UTC().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("mark reminder %d completed: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLReminderRepo) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE reminders
		SET status = 'failed',
		    error_message = $1,
		    call_id = NULL,
		    updated_at = $2
		WHERE id = $3 AND status = 'scheduled'
	`), reason, r.clk.Now().UTC().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("mark reminder %d failed: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// q rebinds $n placeholders to ? for SQLite. Arguments appear in the same
// textual order as their placeholders in every query above, so positional
// rebinding is safe.
func (r *SQLReminderRepo) q(query string) string {
	if r.dialect != DialectSQLite {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (model.Reminder, error) {
	var (
		rem          model.Reminder
		status       string
		scheduledAt  int64
		callID       sql.NullString
		errorMessage sql.NullString
		createdAt    int64
		updatedAt    int64
	)

	if err := row.Scan(
		&rem.ID,
		&rem.Title,
		&rem.Message,
		&rem.PhoneNumber,
		&scheduledAt,
		&rem.Timezone,
		&status,
		&callID,
		&errorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Reminder{}, err
	}

	rem.Status = model.Status(status)
	rem.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	rem.CreatedAt = time.UnixMilli(createdAt).UTC()
	rem.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if callID.Valid {
		s := callID.String
		rem.CallID = &s
	}
	if errorMessage.Valid {
		s := errorMessage.String
		rem.ErrorMessage = &s
	}
	return rem, nil
}

func collectReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var out []model.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}
