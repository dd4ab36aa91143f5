// Package agenda executes parsed commands against the store. It owns the
// glue between the parser, the recurrence expander and the reminder policy:
// every task that is created or moved gets its occurrences and reminders
// materialized here.
package agenda

import (
	"context"
	"fmt"
	"time"

	"remindly/internal/command"
	appLog "remindly/internal/log"
	"remindly/internal/model"
	"remindly/internal/recur"
	"remindly/internal/remind"
	"remindly/internal/store"
)

// Config wires the account-level settings into the service.
type Config struct {
	// Location is the account timezone. Defaults to UTC.
	Location *time.Location

	// HorizonMonths bounds how far ahead occurrences are materialized.
	HorizonMonths int

	// MaxOccurrences caps a single expansion; zero uses the expander default.
	MaxOccurrences int

	// Policy decides the reminders of each occurrence. A zero Policy is
	// replaced by remind.DefaultPolicy(Location).
	Policy remind.Policy

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service is safe for concurrent use; all state lives in the store.
type Service struct {
	store  store.StoreInterface
	loc    *time.Location
	months int
	expand recur.Config
	policy remind.Policy
	now    func() time.Time
}

func New(st store.StoreInterface, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	policy := cfg.Policy
	if policy == (remind.Policy{}) {
		policy = remind.DefaultPolicy(loc)
	}
	if policy.Location == nil {
		policy.Location = loc
	}
	months := cfg.HorizonMonths
	if months <= 0 {
		months = recur.DefaultHorizonMonths
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  st,
		loc:    loc,
		months: months,
		expand: recur.Config{Location: loc, MaxOccurrences: cfg.MaxOccurrences},
		policy: policy,
		now:    now,
	}
}

// Location returns the account timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.now() }

// Store exposes the underlying store to the scheduler and exporters.
func (s *Service) Store() store.StoreInterface { return s.store }

func (s *Service) clock() command.Clock {
	return command.Clock{Now: s.now(), Loc: s.loc}
}

// HandleCommand parses text and executes it.
func (s *Service) HandleCommand(ctx context.Context, text string) (*Result, error) {
	cmd, err := command.Parse(text, s.clock())
	if err != nil {
		return nil, err
	}
	switch cmd.Kind {
	case command.KindAdd:
		return s.Add(ctx, *cmd.Add)
	case command.KindUpdate:
		return s.Update(ctx, *cmd.Update)
	case command.KindDelete:
		return s.Delete(ctx, *cmd.Delete)
	case command.KindView:
		return s.View(ctx, cmd.View)
	}
	return nil, fmt.Errorf("%w: %s", command.ErrUnknownCommand, cmd.Kind)
}

// Add persists spec and materializes its first occurrences and reminders.
// If materializing fails the new task is deactivated again.
func (s *Service) Add(ctx context.Context, spec model.TaskSpec) (*Result, error) {
	task, err := s.store.CreateTask(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	appLog.Info("task added",
		"id", task.ID,
		"title", task.Title,
		"at", task.ScheduledAt.In(s.loc).Format(time.RFC3339),
		"recurrence", model.FormatRecurrence(task.Recurrence),
		"special", task.Special,
	)

	m, err := s.Materialize(ctx, *task, s.now())
	if err != nil {
		s.abandon(ctx, task.ID)
		return nil, fmt.Errorf("add: %w", err)
	}
	idx, _ := s.displayIndex(ctx, task.ID)
	return &Result{
		Kind:      command.KindAdd,
		Task:      s.taskView(*task, idx),
		Reminders: m.Reminders,
	}, nil
}

// abandon soft-deletes a task whose reminders could not be materialized, so
// that retrying the command does not leave a duplicate behind.
func (s *Service) abandon(ctx context.Context, id string) {
	if err := s.store.DeactivateTask(ctx, id, s.now()); err != nil {
		appLog.Error("add: failed to deactivate partial task", err, "id", id)
		return
	}
	if _, err := s.store.DeleteUnsentReminders(ctx, id); err != nil {
		appLog.Error("add: failed to drop partial reminders", err, "id", id)
	}
	appLog.Warn("add: task deactivated after materialize failure", "id", id)
}

// Update moves the selected task. A time-only update keeps the task's
// calendar date in the account timezone; a date change re-binds weekly and
// day-of-month rules to the new date.
func (s *Service) Update(ctx context.Context, upd command.Update) (*Result, error) {
	if upd.Empty() || upd.Time == nil {
		return nil, ErrNothingToUpdate
	}
	task, idx, err := s.Resolve(ctx, upd.Target)
	if err != nil {
		return nil, err
	}

	date := model.DateOf(task.ScheduledAt, s.loc)
	rule := task.Recurrence
	if upd.Date != nil {
		date = *upd.Date
		rule = rebind(rule, date)
	}
	at := date.At(*upd.Time, s.loc)
	now := s.now()
	if !task.IsRecurring() && !at.After(now) {
		return nil, fmt.Errorf("%w: %s", command.ErrPastSchedule, at.Format(time.RFC3339))
	}

	if err := s.store.RescheduleTask(ctx, task.ID, at, rule); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if _, err := s.store.DeleteUnsentReminders(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if err := s.store.DeleteOccurrencesAfter(ctx, task.ID, now); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	appLog.Info("task rescheduled",
		"id", task.ID,
		"from", task.ScheduledAt.In(s.loc).Format(time.RFC3339),
		"to", at.Format(time.RFC3339),
		"recurrence", model.FormatRecurrence(rule),
	)

	task.ScheduledAt = at
	task.Recurrence = rule
	m, err := s.Materialize(ctx, *task, now)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return &Result{
		Kind:      command.KindUpdate,
		Task:      s.taskView(*task, idx),
		Reminders: m.Reminders,
	}, nil
}

// rebind moves the anchor-bound rules onto date. Weekly carries the
// anchor's weekday and MonthlyByDay its day of month; explicit Biweekly and
// MonthlyByWeekday rules are kept as written.
func rebind(rule model.Recurrence, date model.Date) model.Recurrence {
	switch rule.(type) {
	case model.Weekly:
		return model.Weekly{Day: date.Weekday()}
	case model.MonthlyByDay:
		return model.MonthlyByDay{Day: date.Day}
	}
	return rule
}

// Delete soft-deletes the selected task and drops its pending reminders.
func (s *Service) Delete(ctx context.Context, id command.Identifier) (*Result, error) {
	task, idx, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeactivateTask(ctx, task.ID, s.now()); err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	dropped, err := s.store.DeleteUnsentReminders(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	appLog.Info("task deleted", "id", task.ID, "title", task.Title, "dropped_reminders", dropped)

	task.Active = false
	return &Result{Kind: command.KindDelete, Task: s.taskView(*task, idx)}, nil
}

// Materialized counts the rows a Materialize call created.
type Materialized struct {
	Occurrences int
	Reminders   int
}

// Materialize expands task over (now, horizon) and stores every new
// occurrence and owed reminder. Rows that already exist are left alone, so
// calling it repeatedly is harmless.
func (s *Service) Materialize(ctx context.Context, task model.Task, now time.Time) (Materialized, error) {
	var m Materialized
	horizon := recur.HorizonEnd(task.ScheduledAt, now, s.months)
	occs, err := recur.ExpandTask(task, now, horizon, s.expand)
	if err != nil {
		return m, err
	}
	for _, occ := range occs {
		created, err := s.store.RecordOccurrence(ctx, occ)
		if err != nil {
			return m, err
		}
		if created {
			m.Occurrences++
		}
		for _, r := range s.policy.Compute(occ, now) {
			_, created, err := s.store.CreateReminderIfAbsent(ctx, r)
			if err != nil {
				return m, err
			}
			if created {
				m.Reminders++
			}
		}
	}
	if m.Occurrences > 0 || m.Reminders > 0 {
		appLog.Debug("materialized",
			"task", task.ID,
			"occurrences", m.Occurrences,
			"reminders", m.Reminders,
			"horizon", horizon.In(s.loc).Format(time.RFC3339),
		)
	}
	return m, nil
}
