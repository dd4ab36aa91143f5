package model

import (
	"fmt"
	"time"
)

// Date is a timezone-naive calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// Midnight returns 00:00 of the date in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At attaches a time of day to the date in loc. Seconds are always zero.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, loc)
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	return DateOf(t, time.UTC)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Valid reports whether the fields name a real calendar day.
func (d Date) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= DaysIn(d.Year, d.Month)
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TimeOfDay is a 24-hour wall clock value.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ClockOf returns the wall clock time of t in loc.
func ClockOf(t time.Time, loc *time.Location) TimeOfDay {
	lt := t.In(loc)
	return TimeOfDay{Hour: lt.Hour(), Minute: lt.Minute()}
}

// ParseClock parses a strict "HH:MM" value, as used in config files.
func ParseClock(s string) (TimeOfDay, error) {
	var tod TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &tod.Hour, &tod.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if !tod.Valid() {
		return TimeOfDay{}, fmt.Errorf("parse clock %q: out of range", s)
	}
	return tod, nil
}

// MaxTitleLen is the upper bound on task titles, counted in runes.
const MaxTitleLen = 200

// TaskSpec is the structured result of parsing an "add" command.
type TaskSpec struct {
	Title       string
	ScheduledAt time.Time
	// Recurrence is nil for one-shot tasks.
	Recurrence Recurrence
	Special    bool
}

// Task is a persisted task.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Special     bool       `json:"special"`
	Recurrence  Recurrence `json:"-"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// Occurrence is a single concrete firing of a task: either the task's own
// scheduled time or one instance of its recurrence.
type Occurrence struct {
	TaskID  string
	Title   string
	Special bool

	Start time.Time

	// InstanceKey uniquely identifies the occurrence across expansions.
	InstanceKey string
}

// NewOccurrence builds the occurrence of task at start.
func NewOccurrence(task Task, start time.Time) Occurrence {
	return Occurrence{
		TaskID:      task.ID,
		Title:       task.Title,
		Special:     task.Special,
		Start:       start,
		InstanceKey: InstanceKey(task.ID, start),
	}
}

// InstanceKey derives the stable occurrence identity from the task id and
// the UTC instant.
func InstanceKey(taskID string, start time.Time) string {
	return taskID + "@" + start.UTC().Format(time.RFC3339)
}

type ReminderType string

const (
	ReminderDaily            ReminderType = "daily"
	ReminderHourly           ReminderType = "hourly"
	ReminderSpecialDayBefore ReminderType = "special_day_before"
	ReminderSpecialDayOf     ReminderType = "special_day_of"
)

// Reminder is a single reminder owed for an occurrence. SentAt moves from
// nil to non-nil exactly once.
type Reminder struct {
	ID          int64        `json:"id"`
	TaskID      string       `json:"task_id"`
	InstanceKey string       `json:"instance_key"`
	OccursAt    time.Time    `json:"occurs_at"`
	Type        ReminderType `json:"type"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
}
