package agenda

import (
	"context"
	"fmt"
	"sort"
	"time"

	"remindly/internal/command"
	appLog "remindly/internal/log"
	"remindly/internal/model"
	"remindly/internal/recur"
	"remindly/internal/store"
)

// Result is the plain value a command produces. Formatting for the user is
// left to the transport.
type Result struct {
	Kind      command.Kind `json:"kind"`
	Task      *TaskView    `json:"task,omitempty"`
	Reminders int          `json:"reminders_scheduled,omitempty"`

	View  command.View `json:"view,omitempty"`
	From  time.Time    `json:"from,omitzero"`
	To    time.Time    `json:"to,omitzero"`
	Items []Item       `json:"items,omitzero"`
}

// TaskView is a task as shown to the user, with times in the account zone.
type TaskView struct {
	Index       int       `json:"index,omitempty"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Recurrence  string    `json:"recurrence,omitempty"`
	Special     bool      `json:"special"`
	Active      bool      `json:"active"`
}

// Item is one row of a view. For the list view Start is the task's own
// scheduled time; for windowed views it is an occurrence.
type Item struct {
	Index      int       `json:"index"`
	TaskID     string    `json:"task_id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	Recurrence string    `json:"recurrence,omitempty"`
	Special    bool      `json:"special"`
}

func (s *Service) taskView(t model.Task, idx int) *TaskView {
	return &TaskView{
		Index:       idx,
		ID:          t.ID,
		Title:       t.Title,
		ScheduledAt: t.ScheduledAt.In(s.loc),
		Recurrence:  model.FormatRecurrence(t.Recurrence),
		Special:     t.Special,
		Active:      t.Active,
	}
}

// Window returns the [from, to) range a windowed view covers at now.
//
//   - today: now until the next local midnight
//   - week:  the next 7 days
//   - month: the next calendar month
func (s *Service) Window(v command.View, now time.Time) (time.Time, time.Time, error) {
	now = now.In(s.loc)
	switch v {
	case command.ViewToday:
		return now, model.DateOf(now, s.loc).AddDays(1).Midnight(s.loc), nil
	case command.ViewWeek:
		return now, now.AddDate(0, 0, 7), nil
	case command.ViewMonth:
		return now, now.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: view %q has no window", command.ErrUnknownCommand, v)
}

// View builds a listing. "list" shows every active task with its display
// index; the other views show occurrences inside their window.
func (s *Service) View(ctx context.Context, v command.View) (*Result, error) {
	tasks, err := s.store.ListActiveTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", v, err)
	}
	res := &Result{Kind: command.KindView, View: v, Items: []Item{}}

	if v == command.ViewList {
		for i, t := range tasks {
			res.Items = append(res.Items, s.item(t, i+1, t.ScheduledAt))
		}
		return res, nil
	}

	from, to, err := s.Window(v, s.now())
	if err != nil {
		return nil, err
	}
	res.From, res.To = from, to

	for i, t := range tasks {
		occs, err := recur.ExpandTask(t, from, to, s.expand)
		if err != nil {
			appLog.Error("view: skipping task", err, "task", t.ID)
			continue
		}
		for _, occ := range occs {
			res.Items = append(res.Items, s.item(t, i+1, occ.Start))
		}
	}
	sort.SliceStable(res.Items, func(i, j int) bool {
		a, b := res.Items[i], res.Items[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Index < b.Index
	})
	return res, nil
}

func (s *Service) item(t model.Task, idx int, start time.Time) Item {
	return Item{
		Index:      idx,
		TaskID:     t.ID,
		Title:      t.Title,
		Start:      start.In(s.loc),
		Recurrence: model.FormatRecurrence(t.Recurrence),
		Special:    t.Special,
	}
}
