package command

import (
	"fmt"
	"regexp"
	"strconv"

	"remindly/internal/model"
)

var (
	clock24Re  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12Re  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)$`)
	hourOnlyRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
)

// matchTime resolves the time token at toks[0]. A detached meridiem
// ("7:30 pm") is accepted and consumes two tokens. Tokens must already be
// lower-cased.
func matchTime(toks []string) (model.TimeOfDay, int, error) {
	if len(toks) == 0 {
		return model.TimeOfDay{}, 0, ErrMissingTime
	}
	tok := toks[0]

	if len(toks) > 1 && (toks[1] == "am" || toks[1] == "pm") && hourOnlyRe.MatchString(tok) {
		tod, err := parse12(tok + toks[1])
		return tod, 2, err
	}
	if clock12Re.MatchString(tok) {
		tod, err := parse12(tok)
		return tod, 1, err
	}
	if m := clock24Re.FindStringSubmatch(tok); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		tod := model.TimeOfDay{Hour: h, Minute: mi}
		if !tod.Valid() {
			return model.TimeOfDay{}, 1, fmt.Errorf("%w: %q", ErrInvalidTime, tok)
		}
		return tod, 1, nil
	}
	return model.TimeOfDay{}, 0, fmt.Errorf("%w: %q", ErrInvalidTime, tok)
}

// parse12 converts "H[:MM]am|pm" to 24-hour time: 12am is 0, 12pm stays 12.
func parse12(tok string) (model.TimeOfDay, error) {
	m := clock12Re.FindStringSubmatch(tok)
	if m == nil {
		return model.TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, tok)
	}
	h, _ := strconv.Atoi(m[1])
	mi := 0
	if m[2] != "" {
		mi, _ = strconv.Atoi(m[2])
	}
	if h < 1 || h > 12 || mi > 59 {
		return model.TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, tok)
	}
	switch {
	case m[3] == "am" && h == 12:
		h = 0
	case m[3] == "pm" && h != 12:
		h += 12
	}
	return model.TimeOfDay{Hour: h, Minute: mi}, nil
}
