package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recurrence is the closed set of supported repetition rules. Exactly one of
// Weekly, Biweekly, MonthlyByDay or MonthlyByWeekday; a nil Recurrence means
// the task does not repeat.
type Recurrence interface {
	isRecurrence()
	String() string
}

// Weekly repeats every 7 days on Day.
type Weekly struct {
	Day time.Weekday
}

// Biweekly repeats every 14 days on Day.
type Biweekly struct {
	Day time.Weekday
}

// MonthlyByDay repeats on a fixed day of month (1-31). Months shorter than
// Day use their last day.
type MonthlyByDay struct {
	Day int
}

// MonthlyByWeekday repeats on the Nth (or last) Day of each month.
type MonthlyByWeekday struct {
	Ordinal Ordinal
	Day     time.Weekday
}

func (Weekly) isRecurrence()           {}
func (Biweekly) isRecurrence()         {}
func (MonthlyByDay) isRecurrence()     {}
func (MonthlyByWeekday) isRecurrence() {}

// Ordinal selects a week within a month.
type Ordinal int

const (
	OrdinalLast   Ordinal = -1
	OrdinalFirst  Ordinal = 1
	OrdinalSecond Ordinal = 2
	OrdinalThird  Ordinal = 3
	OrdinalFourth Ordinal = 4
)

func (o Ordinal) Valid() bool {
	return o == OrdinalLast || (o >= OrdinalFirst && o <= OrdinalFourth)
}

func (o Ordinal) String() string {
	switch o {
	case OrdinalFirst:
		return "first"
	case OrdinalSecond:
		return "second"
	case OrdinalThird:
		return "third"
	case OrdinalFourth:
		return "fourth"
	case OrdinalLast:
		return "last"
	default:
		return "ordinal(" + strconv.Itoa(int(o)) + ")"
	}
}

// Stored encodings:
//
//	weekly:sat
//	biweekly:mon
//	monthly-day:13
//	monthly-weekday:first:sun
func (r Weekly) String() string   { return "weekly:" + weekdayCode(r.Day) }
func (r Biweekly) String() string { return "biweekly:" + weekdayCode(r.Day) }
func (r MonthlyByDay) String() string {
	return "monthly-day:" + strconv.Itoa(r.Day)
}
func (r MonthlyByWeekday) String() string {
	return "monthly-weekday:" + r.Ordinal.String() + ":" + weekdayCode(r.Day)
}

// ErrBadRecurrence reports a stored recurrence string that cannot be decoded.
var ErrBadRecurrence = errors.New("malformed recurrence")

// FormatRecurrence encodes r for storage; nil encodes as "".
func FormatRecurrence(r Recurrence) string {
	if r == nil {
		return ""
	}
	return r.String()
}

// ParseRecurrence decodes a stored recurrence. "" yields nil.
func ParseRecurrence(s string) (Recurrence, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ":")
	bad := fmt.Errorf("%w: %q", ErrBadRecurrence, s)

	switch parts[0] {
	case "weekly", "biweekly":
		if len(parts) != 2 {
			return nil, bad
		}
		day, ok := weekdayFromCode(parts[1])
		if !ok {
			return nil, bad
		}
		if parts[0] == "weekly" {
			return Weekly{Day: day}, nil
		}
		return Biweekly{Day: day}, nil
	case "monthly-day":
		if len(parts) != 2 {
			return nil, bad
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 || n > 31 {
			return nil, bad
		}
		return MonthlyByDay{Day: n}, nil
	case "monthly-weekday":
		if len(parts) != 3 {
			return nil, bad
		}
		ord, ok := ordinalFromName(parts[1])
		if !ok {
			return nil, bad
		}
		day, ok := weekdayFromCode(parts[2])
		if !ok {
			return nil, bad
		}
		return MonthlyByWeekday{Ordinal: ord, Day: day}, nil
	default:
		return nil, bad
	}
}

var weekdayCodes = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func weekdayCode(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return "?"
	}
	return weekdayCodes[d]
}

func weekdayFromCode(s string) (time.Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == s {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

func ordinalFromName(s string) (Ordinal, bool) {
	for _, o := range []Ordinal{OrdinalFirst, OrdinalSecond, OrdinalThird, OrdinalFourth, OrdinalLast} {
		if o.String() == s {
			return o, true
		}
	}
	return 0, false
}
