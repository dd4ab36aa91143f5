// Package store manages SQLite persistence for tasks, expanded occurrences
// and reminders.
//
// All instants are written as fixed-width UTC strings so that text
// comparison in SQL matches chronological order.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "remindly/internal/log"
	"remindly/internal/model"

	_ "modernc.org/sqlite"
)

const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp with the default config. Every write
// goes through it.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		special      INTEGER NOT NULL DEFAULT 0,
		recurrence   TEXT NOT NULL DEFAULT '',
		active       INTEGER NOT NULL DEFAULT 1,
		created_at   TEXT NOT NULL,
		deleted_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_active_sched ON tasks(active, scheduled_at, id);

	CREATE TABLE IF NOT EXISTS occurrences (
		task_id      TEXT NOT NULL REFERENCES tasks(id),
		starts_at    TEXT NOT NULL,
		instance_key TEXT NOT NULL UNIQUE,
		created_at   TEXT NOT NULL,
		PRIMARY KEY (task_id, starts_at)
	);

	CREATE TABLE IF NOT EXISTS reminders (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id      TEXT NOT NULL REFERENCES tasks(id),
		instance_key TEXT NOT NULL,
		occurs_at    TEXT NOT NULL,
		type         TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		sent_at      TEXT,
		created_at   TEXT NOT NULL,
		UNIQUE (instance_key, type)
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(sent_at, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

const taskColumns = `id, title, scheduled_at, special, recurrence, active, created_at`

// CreateTask persists spec as a new active task with a fresh id.
func (s *Store) CreateTask(ctx context.Context, spec model.TaskSpec) (*model.Task, error) {
	task := &model.Task{
		ID:          uuid.NewString(),
		Title:       spec.Title,
		ScheduledAt: spec.ScheduledAt,
		Special:     spec.Special,
		Recurrence:  spec.Recurrence,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, 1, ?)`,
			task.ID, task.Title, formatTS(task.ScheduledAt), boolToInt(task.Special),
			model.FormatRecurrence(task.Recurrence), formatTS(task.CreatedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListActiveTasks returns active tasks matching f, ordered by scheduled
// time then id. Rows whose stored recurrence no longer parses are logged
// and left out.
func (s *Store) ListActiveTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	var (
		where = []string{"active = 1"}
		args  []any
	)
	if f.Recurring != nil {
		if *f.Recurring {
			where = append(where, "recurrence <> ''")
		} else {
			where = append(where, "recurrence = ''")
		}
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_at >= ?")
		args = append(args, formatTS(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_at < ?")
		args = append(args, formatTS(f.To))
	}

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY scheduled_at, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if errors.Is(err, model.ErrBadRecurrence) {
			appLog.Error("store: skipping task with malformed recurrence", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// RescheduleTask moves an active task's anchor to at and stores rule as its
// recurrence. A nil rule makes the task one-shot.
func (s *Store) RescheduleTask(ctx context.Context, id string, at time.Time, rule model.Recurrence) error {
	return s.execOne(ctx, id,
		`UPDATE tasks SET scheduled_at = ?, recurrence = ? WHERE id = ? AND active = 1`,
		formatTS(at), model.FormatRecurrence(rule), id,
	)
}

// DeactivateTask marks an active task inactive. Its rows are kept.
func (s *Store) DeactivateTask(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, id,
		`UPDATE tasks SET active = 0, deleted_at = ? WHERE id = ? AND active = 1`,
		formatTS(at), id,
	)
}

// DeactivateExpiredTasks deactivates one-shot tasks scheduled before cutoff.
func (s *Store) DeactivateExpiredTasks(ctx context.Context, cutoff, at time.Time) (int64, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET active = 0, deleted_at = ?
			 WHERE active = 1 AND recurrence = '' AND scheduled_at < ?`,
			formatTS(at), formatTS(cutoff),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// execOne runs a single-row update and reports ErrNotFound when nothing
// matched.
func (s *Store) execOne(ctx context.Context, id, query string, args ...any) error {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                    model.Task
		sched, created, rule string
		special, active      int
	)
	if err := row.Scan(&t.ID, &t.Title, &sched, &special, &rule, &active, &created); err != nil {
		return nil, err
	}
	var err error
	if t.ScheduledAt, err = parseTS(sched); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if t.Recurrence, err = model.ParseRecurrence(rule); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Special = special != 0
	t.Active = active != 0
	return &t, nil
}

// ---------------------------------------------------------------------------
// Occurrences
// ---------------------------------------------------------------------------

// RecordOccurrence inserts occ unless (task, start) is already recorded.
func (s *Store) RecordOccurrence(ctx context.Context, occ model.Occurrence) (bool, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO occurrences (task_id, starts_at, instance_key, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			occ.TaskID, formatTS(occ.Start), occ.InstanceKey, formatTS(time.Now()),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("record occurrence %s: %w", occ.InstanceKey, err)
	}
	return n == 1, nil
}

// ListOccurrences returns the recorded occurrences of a task. Title and
// Special come from the owning task row.
func (s *Store) ListOccurrences(ctx context.Context, taskID string) ([]model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.task_id, t.title, t.special, o.starts_at, o.instance_key
		 FROM occurrences o JOIN tasks t ON t.id = o.task_id
		 WHERE o.task_id = ? ORDER BY o.starts_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Occurrence
	for rows.Next() {
		var (
			o       model.Occurrence
			start   string
			special int
		)
		if err := rows.Scan(&o.TaskID, &o.Title, &special, &start, &o.InstanceKey); err != nil {
			return nil, err
		}
		if o.Start, err = parseTS(start); err != nil {
			return nil, err
		}
		o.Special = special != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOccurrencesAfter drops recorded occurrences of a task that start
// after t.
func (s *Store) DeleteOccurrencesAfter(ctx context.Context, taskID string, t time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM occurrences WHERE task_id = ? AND starts_at > ?`,
			taskID, formatTS(t),
		)
		return err
	})
}

// PurgeOccurrencesBefore deletes occurrences that started before cutoff.
func (s *Store) PurgeOccurrencesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM occurrences WHERE starts_at < ?`, formatTS(cutoff))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ---------------------------------------------------------------------------
// Reminders
// ---------------------------------------------------------------------------

const reminderColumns = `id, task_id, instance_key, occurs_at, type, scheduled_at, sent_at`

// CreateReminderIfAbsent inserts r unless a row already exists for
// (instance_key, type). The stored row is returned either way.
func (s *Store) CreateReminderIfAbsent(ctx context.Context, r model.Reminder) (*model.Reminder, bool, error) {
	var created bool
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO reminders (task_id, instance_key, occurs_at, type, scheduled_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(instance_key, type) DO NOTHING`,
			r.TaskID, r.InstanceKey, formatTS(r.OccursAt), string(r.Type),
			formatTS(r.ScheduledAt), formatTS(time.Now()),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		created = n == 1
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert reminder %s/%s: %w", r.InstanceKey, r.Type, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE instance_key = ? AND type = ?`,
		r.InstanceKey, string(r.Type),
	)
	stored, err := scanReminder(row)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// ListUnsentRemindersDueBy returns unsent reminders scheduled at or before
// t, oldest first.
func (s *Store) ListUnsentRemindersDueBy(ctx context.Context, t time.Time) ([]model.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE sent_at IS NULL AND scheduled_at <= ?
		 ORDER BY scheduled_at, id`,
		formatTS(t),
	)
}

// ListReminders returns every reminder of a task ordered by schedule.
func (s *Store) ListReminders(ctx context.Context, taskID string) ([]model.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE task_id = ? ORDER BY scheduled_at, id`,
		taskID,
	)
}

// ClaimReminderSent performs the single unset-to-set transition of
// sent_at. Of any number of concurrent callers for the same id, exactly
// one gets true.
func (s *Store) ClaimReminderSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
			formatTS(at), id,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim reminder %d: %w", id, err)
	}
	return n == 1, nil
}

// DeleteUnsentReminders drops every pending reminder of a task. Sent rows
// are history and stay.
func (s *Store) DeleteUnsentReminders(ctx context.Context, taskID string) (int64, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM reminders WHERE task_id = ? AND sent_at IS NULL`, taskID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// PurgeSentReminders deletes reminders that were sent before cutoff.
func (s *Store) PurgeSentReminders(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM reminders WHERE sent_at IS NOT NULL AND sent_at < ?`, formatTS(cutoff))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *Store) queryReminders(ctx context.Context, query string, args ...any) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var (
		r                  model.Reminder
		typ, occurs, sched string
		sent               sql.NullString
	)
	if err := row.Scan(&r.ID, &r.TaskID, &r.InstanceKey, &occurs, &typ, &sched, &sent); err != nil {
		return nil, err
	}
	r.Type = model.ReminderType(typ)
	var err error
	if r.OccursAt, err = parseTS(occurs); err != nil {
		return nil, err
	}
	if r.ScheduledAt, err = parseTS(sched); err != nil {
		return nil, err
	}
	if sent.Valid {
		at, err := parseTS(sent.String)
		if err != nil {
			return nil, err
		}
		r.SentAt = &at
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
