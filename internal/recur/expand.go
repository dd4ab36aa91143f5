package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "remindly/internal/log"
	"remindly/internal/model"
)

const (
	// DefaultHorizonMonths is how far ahead recurring tasks are expanded.
	DefaultHorizonMonths = 3

	defaultMaxOccurrences = 500
)

// ErrUnsupportedRule is returned for a Recurrence variant the expander does
// not know.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// Config controls how expansion is performed.
type Config struct {
	// Location is the account timezone. Occurrences keep the anchor's wall
	// clock time in this zone across DST changes. If nil, time.UTC is used.
	Location *time.Location

	// MaxOccurrences caps a single expansion. If zero,
	// defaultMaxOccurrences is used.
	MaxOccurrences int
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// HorizonEnd returns the end of the expansion window: the later of anchor
// and now, moved forward by months.
func HorizonEnd(anchor, now time.Time, months int) time.Time {
	if months <= 0 {
		months = DefaultHorizonMonths
	}
	base := anchor
	if now.After(base) {
		base = now
	}
	return base.AddDate(0, months, 0)
}

// Expand produces the instants of rule anchored at anchor that fall strictly
// after now and strictly before horizonEnd. The result is strictly
// increasing and every instant carries the anchor's time of day.
func Expand(rule model.Recurrence, anchor, now, horizonEnd time.Time, cfg Config) ([]time.Time, error) {
	if rule == nil {
		return nil, errors.New("expand: nil rule")
	}
	if !horizonEnd.After(now) {
		return nil, nil
	}
	loc := cfg.location()
	limit := cfg.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	opt, err := Options(rule, alignStart(rule, anchor.In(loc)))
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("expand: build rrule: %w", err)
	}

	times := r.Between(now.In(loc), horizonEnd.In(loc), false)

	out := make([]time.Time, 0, len(times))
	for i, t := range times {
		if len(out) > 0 && !t.After(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
		if len(out) == limit && i < len(times)-1 {
			appLog.Error("expand: truncated occurrences due to cap",
				errors.New("max occurrences reached"),
				"rule", rule.String(),
				"cap", limit,
			)
			break
		}
	}
	return out, nil
}

// FirstInstance returns the earliest instant of rule at or after anchor.
// It differs from anchor when the anchor does not itself satisfy the rule,
// e.g. a "first Sunday" rule anchored on a Wednesday.
func FirstInstance(rule model.Recurrence, anchor time.Time, cfg Config) (time.Time, error) {
	if rule == nil {
		return time.Time{}, errors.New("first instance: nil rule")
	}
	opt, err := Options(rule, alignStart(rule, anchor.In(cfg.location())))
	if err != nil {
		return time.Time{}, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, fmt.Errorf("first instance: build rrule: %w", err)
	}
	first := r.After(anchor.In(cfg.location()), true)
	if first.IsZero() {
		return time.Time{}, fmt.Errorf("first instance: %s has no instance after %s", rule, anchor.Format(time.RFC3339))
	}
	return first, nil
}

// ExpandTask returns the occurrences of task inside (now, horizonEnd). A
// one-shot task yields at most its own scheduled time.
func ExpandTask(task model.Task, now, horizonEnd time.Time, cfg Config) ([]model.Occurrence, error) {
	if !task.IsRecurring() {
		if task.ScheduledAt.After(now) && task.ScheduledAt.Before(horizonEnd) {
			return []model.Occurrence{model.NewOccurrence(task, task.ScheduledAt.In(cfg.location()))}, nil
		}
		return nil, nil
	}

	times, err := Expand(task.Recurrence, task.ScheduledAt, now, horizonEnd, cfg)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	occs := make([]model.Occurrence, 0, len(times))
	for _, t := range times {
		occs = append(occs, model.NewOccurrence(task, t))
	}
	return occs, nil
}

// alignStart moves a weekly/biweekly anchor forward to the first day that
// has the rule's weekday, keeping the time of day. Monthly anchors are
// returned unchanged.
func alignStart(rule model.Recurrence, anchor time.Time) time.Time {
	var wd time.Weekday
	switch r := rule.(type) {
	case model.Weekly:
		wd = r.Day
	case model.Biweekly:
		wd = r.Day
	default:
		return anchor
	}
	ahead := (int(wd) - int(anchor.Weekday()) + 7) % 7
	return anchor.AddDate(0, 0, ahead)
}
