package store

import (
	"context"
	"errors"
	"time"

	"remindly/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// TaskFilter narrows ListActiveTasks. Zero values mean "no constraint".
type TaskFilter struct {
	// Recurring, when non-nil, selects only recurring (true) or one-shot
	// (false) tasks.
	Recurring *bool

	// From / To bound scheduled_at as [From, To).
	From time.Time
	To   time.Time
}

// StoreInterface is the persistence surface the agenda and scheduler use.
// The concrete *Store type implements it.
type StoreInterface interface {
	Close() error

	// --- Tasks ---

	// CreateTask persists a parsed TaskSpec as a new active task.
	CreateTask(ctx context.Context, spec model.TaskSpec) (*model.Task, error)

	// GetTask returns a task by id, active or not.
	GetTask(ctx context.Context, id string) (*model.Task, error)

	// ListActiveTasks returns active tasks ordered by scheduled time, then id.
	ListActiveTasks(ctx context.Context, f TaskFilter) ([]model.Task, error)

	// RescheduleTask moves a task's anchor and replaces its recurrence.
	RescheduleTask(ctx context.Context, id string, at time.Time, rule model.Recurrence) error

	// DeactivateTask soft-deletes a task.
	DeactivateTask(ctx context.Context, id string, at time.Time) error

	// DeactivateExpiredTasks soft-deletes one-shot tasks scheduled before cutoff.
	DeactivateExpiredTasks(ctx context.Context, cutoff, at time.Time) (int64, error)

	// --- Occurrences ---

	// RecordOccurrence stores an expanded occurrence; false if it already existed.
	RecordOccurrence(ctx context.Context, occ model.Occurrence) (bool, error)

	// ListOccurrences returns recorded occurrences of a task in start order.
	ListOccurrences(ctx context.Context, taskID string) ([]model.Occurrence, error)

	// DeleteOccurrencesAfter drops recorded occurrences starting after t.
	DeleteOccurrencesAfter(ctx context.Context, taskID string, t time.Time) error

	// PurgeOccurrencesBefore drops occurrences of every task that started
	// before cutoff.
	PurgeOccurrencesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// --- Reminders ---

	// CreateReminderIfAbsent inserts r unless one already exists for
	// (InstanceKey, Type). It returns the stored row and whether this call
	// created it.
	CreateReminderIfAbsent(ctx context.Context, r model.Reminder) (*model.Reminder, bool, error)

	// ListUnsentRemindersDueBy returns unsent reminders with scheduled time <= t.
	ListUnsentRemindersDueBy(ctx context.Context, t time.Time) ([]model.Reminder, error)

	// ClaimReminderSent sets sent_at only if it is still unset. True means
	// this call performed the transition.
	ClaimReminderSent(ctx context.Context, id int64, at time.Time) (bool, error)

	// ListReminders returns every reminder of a task in schedule order.
	ListReminders(ctx context.Context, taskID string) ([]model.Reminder, error)

	// DeleteUnsentReminders drops a task's pending reminders.
	DeleteUnsentReminders(ctx context.Context, taskID string) (int64, error)

	// PurgeSentReminders drops reminders sent before cutoff.
	PurgeSentReminders(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
