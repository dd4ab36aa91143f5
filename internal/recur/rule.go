package recur

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"remindly/internal/model"
)

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Options translates a Recurrence into rrule options starting at dtstart.
// A zero dtstart leaves DTSTART unset, which is what RRULE property values
// need.
//
//   - Weekly / Biweekly: FREQ=WEEKLY with INTERVAL 1 / 2 on the rule's day.
//   - MonthlyByDay: BYMONTHDAY=d. Days past 28 become BYMONTHDAY=28..d with
//     BYSETPOS=-1, so short months fall back to their last day.
//   - MonthlyByWeekday: BYDAY=+nXX or -1XX. Months without the Nth weekday
//     produce no instance.
func Options(rule model.Recurrence, dtstart time.Time) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: dtstart}

	switch r := rule.(type) {
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 1
		opt.Byweekday = []rrule.Weekday{rruleWeekday(r.Day)}
	case model.Biweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
		opt.Byweekday = []rrule.Weekday{rruleWeekday(r.Day)}
	case model.MonthlyByDay:
		if r.Day < 1 || r.Day > 31 {
			return rrule.ROption{}, fmt.Errorf("%w: day of month %d", ErrUnsupportedRule, r.Day)
		}
		opt.Freq = rrule.MONTHLY
		opt.Interval = 1
		if r.Day <= 28 {
			opt.Bymonthday = []int{r.Day}
		} else {
			for d := 28; d <= r.Day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	case model.MonthlyByWeekday:
		if !r.Ordinal.Valid() {
			return rrule.ROption{}, fmt.Errorf("%w: ordinal %d", ErrUnsupportedRule, int(r.Ordinal))
		}
		opt.Freq = rrule.MONTHLY
		opt.Interval = 1
		wd := rruleWeekday(r.Day)
		opt.Byweekday = []rrule.Weekday{wd.Nth(int(r.Ordinal))}
	default:
		return rrule.ROption{}, fmt.Errorf("%w: %T", ErrUnsupportedRule, rule)
	}
	return opt, nil
}

// RRule renders rule as an RFC 5545 RRULE value, e.g. "FREQ=WEEKLY;BYDAY=SA".
func RRule(rule model.Recurrence) (string, error) {
	opt, err := Options(rule, time.Time{})
	if err != nil {
		return "", err
	}
	return opt.String(), nil
}

func rruleWeekday(d time.Weekday) rrule.Weekday {
	return rruleWeekdays[d]
}
