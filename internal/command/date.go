package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindly/internal/model"
)

// Clock is the reference point every resolver works against. It is passed
// explicitly so parsing never depends on process-wide state.
type Clock struct {
	Now time.Time
	Loc *time.Location
}

func (c Clock) today() model.Date {
	return model.DateOf(c.Now, c.location())
}

func (c Clock) location() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

var (
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	monthDayRe = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
)

// matchDate recognizes a date token at toks[0], or the pair "next <weekday>".
// Tokens must already be lower-cased. It returns the number of tokens
// consumed; 0 means toks[0] is not a date token. A token that has the shape
// of a date literal but names no real day is consumed and reported as
// ErrInvalidDate.
func matchDate(toks []string, clk Clock) (model.Date, int, error) {
	if len(toks) == 0 {
		return model.Date{}, 0, nil
	}
	tok := toks[0]
	today := clk.today()

	if m := isoDateRe.FindStringSubmatch(tok); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		date := model.Date{Year: y, Month: time.Month(mo), Day: d}
		if !date.Valid() {
			return model.Date{}, 1, fmt.Errorf("%w: %q", ErrInvalidDate, tok)
		}
		return date, 1, nil
	}

	if m := monthDayRe.FindStringSubmatch(tok); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		date := model.Date{Year: today.Year, Month: time.Month(mo), Day: d}
		if date.Valid() && date.Before(today) {
			date.Year++
		}
		if !date.Valid() {
			return model.Date{}, 1, fmt.Errorf("%w: %q", ErrInvalidDate, tok)
		}
		return date, 1, nil
	}

	switch tok {
	case "today":
		return today, 1, nil
	case "tomorrow":
		return today.AddDays(1), 1, nil
	case "next":
		if len(toks) < 2 {
			return model.Date{}, 0, nil
		}
		wd, ok := parseWeekday(toks[1])
		if !ok {
			return model.Date{}, 0, nil
		}
		return nextWeekday(today, wd).AddDays(7), 2, nil
	}

	if wd, ok := parseWeekday(tok); ok {
		return nextWeekday(today, wd), 1, nil
	}
	return model.Date{}, 0, nil
}

// nextWeekday returns the first wd strictly after today; it never returns
// today itself.
func nextWeekday(today model.Date, wd time.Weekday) model.Date {
	ahead := int(wd) - int(today.Weekday())
	if ahead <= 0 {
		ahead += 7
	}
	return today.AddDays(ahead)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(tok string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.TrimSuffix(tok, ",")]
	return wd, ok
}

var ordinalNames = map[string]model.Ordinal{
	"first": model.OrdinalFirst, "1st": model.OrdinalFirst,
	"second": model.OrdinalSecond, "2nd": model.OrdinalSecond,
	"third": model.OrdinalThird, "3rd": model.OrdinalThird,
	"fourth": model.OrdinalFourth, "4th": model.OrdinalFourth,
	"last": model.OrdinalLast,
}

func parseOrdinal(tok string) (model.Ordinal, bool) {
	o, ok := ordinalNames[tok]
	return o, ok
}
