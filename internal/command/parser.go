// Package command turns short free-text commands into structured requests.
//
// Grammar (keywords are case-insensitive, tokens are whitespace separated):
//
//	add <title...> <date> <time> [<recurrence>] [special]
//	update <identifier> [to <time> | to <date> <time>]
//	delete <identifier>
//	today | week | month | list
//
// <identifier> is either a positive display index or a quoted title
// substring.
package command

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"remindly/internal/model"
)

type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindView   Kind = "view"
)

// View names a listing.
type View string

const (
	ViewToday View = "today"
	ViewWeek  View = "week"
	ViewMonth View = "month"
	ViewList  View = "list"
)

// Command is a parsed request; exactly one payload field is set, matching Kind.
type Command struct {
	Kind   Kind
	Add    *model.TaskSpec
	Update *Update
	Delete *Identifier
	View   View
}

// Classify inspects the leading keyword only.
func Classify(text string) (Kind, error) {
	kw, _ := splitKeyword(text)
	switch kw {
	case "add":
		return KindAdd, nil
	case "update":
		return KindUpdate, nil
	case "delete":
		return KindDelete, nil
	case string(ViewToday), string(ViewWeek), string(ViewMonth), string(ViewList):
		return KindView, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, kw)
}

// Parse classifies text and runs the matching grammar.
func Parse(text string, clk Clock) (Command, error) {
	kind, err := Classify(text)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Kind: kind}
	switch kind {
	case KindAdd:
		spec, err := ParseAdd(text, clk)
		if err != nil {
			return Command{}, err
		}
		cmd.Add = &spec
	case KindUpdate:
		upd, err := ParseUpdate(text, clk)
		if err != nil {
			return Command{}, err
		}
		cmd.Update = &upd
	case KindDelete:
		id, err := ParseDelete(text)
		if err != nil {
			return Command{}, err
		}
		cmd.Delete = &id
	case KindView:
		kw, _ := splitKeyword(text)
		cmd.View = View(kw)
	}
	return cmd, nil
}

// ParseAdd parses "add <title> <date> <time> [recurrence] [special]".
//
// Title tokens run up to the first date token. Exactly one time token must
// follow the date. Recurrence and the special flag are optional, and any
// trailing tokens after them are ignored. One-shot tasks must lie strictly
// after clk.Now; recurring tasks are not checked.
func ParseAdd(text string, clk Clock) (model.TaskSpec, error) {
	kw, body := splitKeyword(text)
	if kw != "add" {
		return model.TaskSpec{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kw)
	}

	toks := strings.Fields(body)
	lower := lowerAll(toks)

	var (
		date     model.Date
		boundary = -1
		cursor   int
	)
	for i := range lower {
		d, n, err := matchDate(lower[i:], clk)
		if err != nil {
			return model.TaskSpec{}, err
		}
		if n > 0 {
			date, boundary, cursor = d, i, i+n
			break
		}
	}
	if boundary < 0 {
		return model.TaskSpec{}, ErrMissingDate
	}
	if boundary == 0 {
		return model.TaskSpec{}, ErrEmptyTitle
	}

	tod, n, err := matchTime(lower[cursor:])
	if err != nil {
		return model.TaskSpec{}, err
	}
	cursor += n

	rule, n := matchRecurrence(lower[cursor:], date)
	cursor += n

	special := cursor < len(lower) && lower[cursor] == "special"

	spec := model.TaskSpec{
		Title:       strings.TrimSpace(strings.Join(toks[:boundary], " ")),
		ScheduledAt: date.At(tod, clk.location()),
		Recurrence:  rule,
		Special:     special,
	}
	if err := validateSpec(spec, clk); err != nil {
		return model.TaskSpec{}, err
	}
	return spec, nil
}

func validateSpec(spec model.TaskSpec, clk Clock) error {
	if spec.Title == "" {
		return ErrEmptyTitle
	}
	if n := utf8.RuneCountInString(spec.Title); n > model.MaxTitleLen {
		return fmt.Errorf("%w: %d characters, limit %d", ErrTitleTooLong, n, model.MaxTitleLen)
	}
	if spec.Recurrence == nil && !spec.ScheduledAt.After(clk.Now) {
		return fmt.Errorf("%w: %s", ErrPastSchedule, spec.ScheduledAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// splitKeyword returns the lower-cased first word and the remainder.
func splitKeyword(text string) (string, string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, isSpace)
	if i < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:i]), strings.TrimSpace(text[i:])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func lowerAll(toks []string) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = strings.ToLower(t)
	}
	return out
}
