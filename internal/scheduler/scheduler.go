// Package scheduler runs the periodic passes of the reminder engine:
// expansion of upcoming occurrences, dispatch of due reminders and the
// retention sweep. Passes can be driven by the in-process cron or called
// directly (HTTP trigger, CLI tick).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"remindly/internal/agenda"
	appLog "remindly/internal/log"
	"remindly/internal/notify"
	"remindly/internal/store"
)

// Config holds cron specs (standard five-field syntax) and the retention
// window. An empty spec disables that job.
type Config struct {
	ExpandSpec   string
	DispatchSpec string
	CleanupSpec  string

	// Retention is how long finished one-shot tasks and sent reminders are
	// kept. Zero disables the sweep.
	Retention time.Duration
}

// Scheduler owns the cron runner and the three passes.
type Scheduler struct {
	svc      *agenda.Service
	store    store.StoreInterface
	notifier notify.Notifier
	cfg      Config

	cron *cron.Cron
}

func New(svc *agenda.Service, n notify.Notifier, cfg Config) *Scheduler {
	if n == nil {
		n = notify.Log{}
	}
	logger := cronLogger{}
	return &Scheduler{
		svc:      svc,
		store:    svc.Store(),
		notifier: n,
		cfg:      cfg,
		cron: cron.New(
			cron.WithLocation(svc.Location()),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start registers the configured jobs and starts the cron runner. Jobs
// run with ctx; cancel it and call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"expand", s.cfg.ExpandSpec, func() { s.Expand(ctx) }},
		{"dispatch", s.cfg.DispatchSpec, func() { s.Dispatch(ctx) }},
		{"cleanup", s.cfg.CleanupSpec, func() { s.Cleanup(ctx) }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			appLog.Info("scheduler job disabled", "job", j.name)
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return fmt.Errorf("scheduler: %s job %q: %w", j.name, j.spec, err)
		}
		appLog.Info("scheduler job registered", "job", j.name, "spec", j.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out; jobs still running")
	}
}

// ExpandStats summarizes one expansion pass.
type ExpandStats struct {
	Tasks       int `json:"tasks"`
	Occurrences int `json:"occurrences"`
	Reminders   int `json:"reminders"`
	Failed      int `json:"failed"`
}

// Expand materializes occurrences and reminders for every active task up
// to the rolling horizon. A failing task is logged and skipped.
func (s *Scheduler) Expand(ctx context.Context) ExpandStats {
	var st ExpandStats
	now := s.svc.Now()
	tasks, err := s.store.ListActiveTasks(ctx, store.TaskFilter{})
	if err != nil {
		appLog.Error("expand: list tasks", err)
		st.Failed++
		return st
	}
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		st.Tasks++
		m, err := s.svc.Materialize(ctx, t, now)
		if err != nil {
			appLog.Error("expand: skipping task", err, "task", t.ID, "title", t.Title)
			st.Failed++
			continue
		}
		st.Occurrences += m.Occurrences
		st.Reminders += m.Reminders
	}
	appLog.Info("expand pass done",
		"tasks", st.Tasks,
		"occurrences", st.Occurrences,
		"reminders", st.Reminders,
		"failed", st.Failed,
	)
	return st
}

// DispatchStats summarizes one dispatch pass.
type DispatchStats struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Dispatch delivers every unsent reminder that is due. Each reminder is
// claimed before it is sent, so concurrent passes never deliver one
// twice; a send that fails after the claim is logged and not retried.
func (s *Scheduler) Dispatch(ctx context.Context) DispatchStats {
	var st DispatchStats
	now := s.svc.Now()
	due, err := s.store.ListUnsentRemindersDueBy(ctx, now)
	if err != nil {
		appLog.Error("dispatch: list due reminders", err)
		st.Failed++
		return st
	}
	st.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		won, err := s.store.ClaimReminderSent(ctx, r.ID, now)
		if err != nil {
			appLog.Error("dispatch: claim", err, "reminder", r.ID)
			st.Failed++
			continue
		}
		if !won {
			st.Skipped++
			continue
		}
		if !r.OccursAt.After(now) {
			appLog.Warn("dispatch: occurrence already started, not sending",
				"reminder", r.ID,
				"type", string(r.Type),
				"occurs_at", r.OccursAt.In(s.svc.Location()).Format(time.RFC3339),
			)
			st.Expired++
			continue
		}

		task, err := s.store.GetTask(ctx, r.TaskID)
		if err != nil || !task.Active {
			if err == nil {
				err = errors.New("task inactive")
			}
			appLog.Error("dispatch: task unavailable", err, "reminder", r.ID, "task", r.TaskID)
			st.Failed++
			continue
		}

		msg := notify.NewMessage(r, *task, s.svc.Location())
		if err := s.notifier.Send(ctx, msg); err != nil {
			appLog.Error("dispatch: send failed", err,
				"reminder", r.ID,
				"notifier", s.notifier.Name(),
			)
			st.Failed++
			continue
		}
		st.Sent++
	}
	if st.Due > 0 {
		appLog.Info("dispatch pass done",
			"due", st.Due,
			"sent", st.Sent,
			"skipped", st.Skipped,
			"expired", st.Expired,
			"failed", st.Failed,
		)
	}
	return st
}

// CleanupStats summarizes one retention sweep.
type CleanupStats struct {
	Deactivated int64 `json:"deactivated"`
	Purged      int64 `json:"purged"`
	Pruned      int64 `json:"pruned_occurrences"`
}

// Cleanup soft-deletes one-shot tasks that ended more than the retention
// window ago, purges sent reminders older than that window and prunes
// occurrences that started before it.
func (s *Scheduler) Cleanup(ctx context.Context) CleanupStats {
	var st CleanupStats
	if s.cfg.Retention <= 0 {
		return st
	}
	now := s.svc.Now()
	cutoff := now.Add(-s.cfg.Retention)

	var err error
	if st.Deactivated, err = s.store.DeactivateExpiredTasks(ctx, cutoff, now); err != nil {
		appLog.Error("cleanup: deactivate expired tasks", err)
	}
	if st.Purged, err = s.store.PurgeSentReminders(ctx, cutoff); err != nil {
		appLog.Error("cleanup: purge sent reminders", err)
	}
	if st.Pruned, err = s.store.PurgeOccurrencesBefore(ctx, cutoff); err != nil {
		appLog.Error("cleanup: prune occurrences", err)
	}
	appLog.Info("cleanup pass done",
		"cutoff", cutoff.In(s.svc.Location()).Format(time.RFC3339),
		"deactivated", st.Deactivated,
		"purged", st.Purged,
		"pruned_occurrences", st.Pruned,
	)
	return st
}

// cronLogger routes cron's own logging through the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
