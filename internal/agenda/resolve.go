package agenda

import (
	"context"
	"fmt"
	"strings"

	"remindly/internal/command"
	"remindly/internal/model"
	"remindly/internal/store"
)

// Resolve maps an identifier onto one active task. Display indexes count
// from 1 in list order (scheduled time, then id). A title query matches
// case-insensitively by substring; when several titles contain it but
// exactly one equals it, that one wins.
func (s *Service) Resolve(ctx context.Context, id command.Identifier) (*model.Task, int, error) {
	tasks, err := s.store.ListActiveTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", id, err)
	}

	if id.Query == "" {
		if id.Index < 1 || id.Index > len(tasks) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNoMatch, id)
		}
		t := tasks[id.Index-1]
		return &t, id.Index, nil
	}

	q := strings.ToLower(id.Query)
	var (
		matches []int
		exact   []int
	)
	for i, t := range tasks {
		title := strings.ToLower(t.Title)
		if !strings.Contains(title, q) {
			continue
		}
		matches = append(matches, i)
		if title == q {
			exact = append(exact, i)
		}
	}

	switch {
	case len(matches) == 1:
		i := matches[0]
		return &tasks[i], i + 1, nil
	case len(exact) == 1:
		i := exact[0]
		return &tasks[i], i + 1, nil
	case len(matches) == 0:
		return nil, 0, fmt.Errorf("%w: %s", ErrNoMatch, id)
	}

	names := make([]string, 0, len(matches))
	for _, i := range matches {
		names = append(names, fmt.Sprintf("#%d %s", i+1, tasks[i].Title))
	}
	return nil, 0, fmt.Errorf("%w: %s matches %s", ErrAmbiguous, id, strings.Join(names, ", "))
}

// displayIndex returns the list position of an active task, or 0.
func (s *Service) displayIndex(ctx context.Context, taskID string) (int, error) {
	tasks, err := s.store.ListActiveTasks(ctx, store.TaskFilter{})
	if err != nil {
		return 0, err
	}
	for i, t := range tasks {
		if t.ID == taskID {
			return i + 1, nil
		}
	}
	return 0, nil
}
