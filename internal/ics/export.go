// Package ics renders active tasks as an iCalendar feed so they can be
// subscribed to from any calendar client.
package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "remindly/internal/log"
	"remindly/internal/model"
	"remindly/internal/recur"
)

const (
	productID       = "-//remindly//task feed//EN"
	defaultDuration = 30 * time.Minute

	// CategorySpecial tags events created from special tasks.
	CategorySpecial = "SPECIAL"
)

// ExportConfig controls feed rendering.
type ExportConfig struct {
	// Location is the account timezone. Event times are written as local
	// wall clock with its TZID so that RRULE weekdays stay in that zone.
	Location *time.Location
	// Name is shown by clients as the calendar title.
	Name string
	// Duration is the length given to each event; tasks have no end time.
	Duration time.Duration
	// Now stamps DTSTAMP on every event.
	Now time.Time
}

// Build returns a calendar with one VEVENT per task. Recurring tasks carry
// an RRULE; a task whose rule cannot be encoded is logged and left out.
func Build(tasks []model.Task, cfg ExportConfig) *ical.Calendar {
	dur := cfg.Duration
	if dur <= 0 {
		dur = defaultDuration
	}
	stamp := cfg.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if cfg.Name != "" {
		cal.SetXWRCalName(cfg.Name)
	}

	for _, t := range tasks {
		var rule string
		start := t.ScheduledAt.In(loc)
		if t.IsRecurring() {
			r, err := recur.RRule(t.Recurrence)
			if err != nil {
				appLog.Error("ics export: skipping task", err, "task", t.ID)
				continue
			}
			// DTSTART always counts as an instance, so it must be one the
			// rule produces.
			first, err := recur.FirstInstance(t.Recurrence, t.ScheduledAt, recur.Config{Location: loc})
			if err != nil {
				appLog.Error("ics export: skipping task", err, "task", t.ID)
				continue
			}
			rule, start = r, first.In(loc)
		}

		ev := cal.AddEvent(t.ID + "@remindly")
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(t.CreatedAt)
		setTime(ev, ical.ComponentPropertyDtStart, start)
		setTime(ev, ical.ComponentPropertyDtEnd, start.Add(dur))
		ev.SetSummary(t.Title)
		if rule != "" {
			ev.AddProperty(ical.ComponentPropertyRrule, rule)
		}
		if t.Special {
			ev.AddProperty(ical.ComponentPropertyCategories, CategorySpecial)
		}
	}
	return cal
}

// setTime writes a local DTSTART/DTEND with TZID, or a UTC value when the
// zone has no IANA name a client could resolve.
func setTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	name := t.Location().String()
	if _, err := time.LoadLocation(name); err != nil || name == "UTC" || name == "Local" {
		ev.SetProperty(prop, t.UTC().Format("20060102T150405Z"))
		return
	}
	ev.SetProperty(prop, t.Format("20060102T150405"),
		&ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{name}})
}

// Write serializes the feed for tasks to w.
func Write(w io.Writer, tasks []model.Task, cfg ExportConfig) error {
	_, err := io.WriteString(w, Build(tasks, cfg).Serialize())
	return err
}
