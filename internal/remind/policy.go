// Package remind decides which reminders an occurrence is owed.
package remind

import (
	"sort"
	"time"

	"remindly/internal/model"
)

// Policy holds the fixed reminder offsets for one account.
type Policy struct {
	// Location is the account timezone used for calendar-day arithmetic.
	Location *time.Location

	// DailyAt is when the same-day digest reminder fires.
	DailyAt model.TimeOfDay

	// SpecialDayOfAt is when the day-of reminder for special tasks fires.
	SpecialDayOfAt model.TimeOfDay

	// HourlyLead is how long before the occurrence the hourly reminder fires.
	HourlyLead time.Duration
}

// DefaultPolicy returns 05:30 local for daily/day-of reminders and a one
// hour lead.
func DefaultPolicy(loc *time.Location) Policy {
	return Policy{
		Location:       loc,
		DailyAt:        model.TimeOfDay{Hour: 5, Minute: 30},
		SpecialDayOfAt: model.TimeOfDay{Hour: 5, Minute: 30},
		HourlyLead:     time.Hour,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Compute returns the reminders owed for occ, ordered by scheduled time.
//
//   - daily: only when occ falls on today's date, at DailyAt.
//   - hourly: HourlyLead before occ.
//   - special_day_before: one calendar day before occ (special tasks only).
//   - special_day_of: SpecialDayOfAt on occ's date (special tasks only).
//
// A candidate is dropped unless it is strictly after now and strictly
// before the occurrence itself.
func (p Policy) Compute(occ model.Occurrence, now time.Time) []model.Reminder {
	loc := p.location()
	start := occ.Start.In(loc)
	day := model.DateOf(start, loc)

	type candidate struct {
		typ model.ReminderType
		at  time.Time
	}
	cands := make([]candidate, 0, 4)

	if day == model.DateOf(now, loc) {
		cands = append(cands, candidate{model.ReminderDaily, day.At(p.DailyAt, loc)})
	}
	cands = append(cands, candidate{model.ReminderHourly, start.Add(-p.HourlyLead)})
	if occ.Special {
		cands = append(cands,
			candidate{model.ReminderSpecialDayBefore, start.AddDate(0, 0, -1)},
			candidate{model.ReminderSpecialDayOf, day.At(p.SpecialDayOfAt, loc)},
		)
	}

	out := make([]model.Reminder, 0, len(cands))
	for _, c := range cands {
		if !c.at.After(now) || !c.at.Before(start) {
			continue
		}
		out = append(out, model.Reminder{
			TaskID:      occ.TaskID,
			InstanceKey: occ.InstanceKey,
			OccursAt:    start,
			Type:        c.typ,
			ScheduledAt: c.at,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}
