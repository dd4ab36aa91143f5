package command

import (
	"time"

	"remindly/internal/model"
)

// recurrenceMatcher inspects the tokens at the cursor and either returns a
// rule together with the number of tokens it consumed, or declines with 0.
// anchor is the task's own date; rules without an explicit day bind to it.
type recurrenceMatcher struct {
	name  string
	match func(toks []string, anchor model.Date) (model.Recurrence, int)
}

// recurrenceMatchers is evaluated in order; the first match wins.
var recurrenceMatchers = []recurrenceMatcher{
	{"weekly", matchWeekly},
	{"biweekly", matchBiweekly},
	{"monthly-ordinal-weekday", matchMonthlyOrdinalWeekday},
	{"ordinal-weekday-of-every-month", matchOrdinalWeekdayOfEveryMonth},
	{"weekday-monthly", matchWeekdayMonthly},
	{"monthly", matchMonthly},
}

// matchRecurrence returns nil, 0 when no pattern applies.
func matchRecurrence(toks []string, anchor model.Date) (model.Recurrence, int) {
	for _, m := range recurrenceMatchers {
		if r, n := m.match(toks, anchor); n > 0 {
			return r, n
		}
	}
	return nil, 0
}

// weekly binds the anchor's weekday.
func matchWeekly(toks []string, anchor model.Date) (model.Recurrence, int) {
	if len(toks) < 1 || toks[0] != "weekly" {
		return nil, 0
	}
	return model.Weekly{Day: anchor.Weekday()}, 1
}

// biweekly [<weekday>]; a missing weekday means Monday.
func matchBiweekly(toks []string, _ model.Date) (model.Recurrence, int) {
	if len(toks) < 1 || toks[0] != "biweekly" {
		return nil, 0
	}
	if len(toks) > 1 {
		if wd, ok := parseWeekday(toks[1]); ok {
			return model.Biweekly{Day: wd}, 2
		}
	}
	return model.Biweekly{Day: time.Monday}, 1
}

// monthly <ordinal> <weekday>
func matchMonthlyOrdinalWeekday(toks []string, _ model.Date) (model.Recurrence, int) {
	if len(toks) < 3 || toks[0] != "monthly" {
		return nil, 0
	}
	ord, ok := parseOrdinal(toks[1])
	if !ok {
		return nil, 0
	}
	wd, ok := parseWeekday(toks[2])
	if !ok {
		return nil, 0
	}
	return model.MonthlyByWeekday{Ordinal: ord, Day: wd}, 3
}

// <ordinal> <weekday> of every|each month
func matchOrdinalWeekdayOfEveryMonth(toks []string, _ model.Date) (model.Recurrence, int) {
	if len(toks) < 5 {
		return nil, 0
	}
	ord, ok := parseOrdinal(toks[0])
	if !ok {
		return nil, 0
	}
	wd, ok := parseWeekday(toks[1])
	if !ok {
		return nil, 0
	}
	if toks[2] != "of" || (toks[3] != "every" && toks[3] != "each") || toks[4] != "month" {
		return nil, 0
	}
	return model.MonthlyByWeekday{Ordinal: ord, Day: wd}, 5
}

// <weekday> monthly, or <ordinal> <weekday> monthly. Without an ordinal the
// anchor's week of month is used (days 29-31 count as "last").
func matchWeekdayMonthly(toks []string, anchor model.Date) (model.Recurrence, int) {
	if len(toks) >= 3 {
		if ord, ok := parseOrdinal(toks[0]); ok {
			if wd, ok := parseWeekday(toks[1]); ok && toks[2] == "monthly" {
				return model.MonthlyByWeekday{Ordinal: ord, Day: wd}, 3
			}
		}
	}
	if len(toks) >= 2 {
		if wd, ok := parseWeekday(toks[0]); ok && toks[1] == "monthly" {
			return model.MonthlyByWeekday{Ordinal: anchorOrdinal(anchor), Day: wd}, 2
		}
	}
	return nil, 0
}

// generic monthly binds the anchor's day of month.
func matchMonthly(toks []string, anchor model.Date) (model.Recurrence, int) {
	if len(toks) < 1 || toks[0] != "monthly" {
		return nil, 0
	}
	return model.MonthlyByDay{Day: anchor.Day}, 1
}

func anchorOrdinal(anchor model.Date) model.Ordinal {
	n := (anchor.Day-1)/7 + 1
	if n > 4 {
		return model.OrdinalLast
	}
	return model.Ordinal(n)
}
