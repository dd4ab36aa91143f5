package command

import (
	"fmt"
	"strconv"
	"strings"

	"remindly/internal/model"
)

// Identifier selects an existing task either by its 1-based display index
// or by a title substring. Exactly one of Index and Query is set.
type Identifier struct {
	Index int
	Query string
}

func (id Identifier) String() string {
	if id.Query != "" {
		return strconv.Quote(id.Query)
	}
	return "#" + strconv.Itoa(id.Index)
}

// Update carries the requested changes. A nil Date keeps the task's
// current date.
type Update struct {
	Target Identifier
	Date   *model.Date
	Time   *model.TimeOfDay
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Date == nil && u.Time == nil
}

// ParseUpdate parses "update <identifier> [to <time> | to <date> <time>]".
func ParseUpdate(text string, clk Clock) (Update, error) {
	kw, body := splitKeyword(text)
	if kw != "update" {
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kw)
	}
	id, rest, err := parseIdentifier(body)
	if err != nil {
		return Update{}, err
	}
	upd := Update{Target: id}

	toks := lowerAll(strings.Fields(rest))
	if len(toks) == 0 || toks[0] != "to" {
		return upd, nil
	}
	toks = toks[1:]
	if len(toks) == 0 {
		return Update{}, ErrMissingTime
	}

	date, n, err := matchDate(toks, clk)
	if err != nil {
		return Update{}, err
	}
	if n > 0 {
		upd.Date = &date
		toks = toks[n:]
	}
	tod, _, err := matchTime(toks)
	if err != nil {
		return Update{}, err
	}
	upd.Time = &tod
	return upd, nil
}

// ParseDelete parses "delete <identifier>". Trailing tokens are ignored.
func ParseDelete(text string) (Identifier, error) {
	kw, body := splitKeyword(text)
	if kw != "delete" {
		return Identifier{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kw)
	}
	id, _, err := parseIdentifier(body)
	return id, err
}

// closingQuote accepts straight and typographic double quotes, since chat
// clients often substitute the latter.
func closingQuote(open rune) (rune, bool) {
	switch open {
	case '"':
		return '"', true
	case '“':
		return '”', true
	}
	return 0, false
}

// parseIdentifier reads a quoted substring or a positive integer from the
// start of body and returns the unconsumed remainder.
func parseIdentifier(body string) (Identifier, string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Identifier{}, "", fmt.Errorf("%w: missing", ErrInvalidIdentifier)
	}

	first := []rune(body)[0]
	if closer, ok := closingQuote(first); ok {
		inner := body[len(string(first)):]
		end := strings.IndexRune(inner, closer)
		if end < 0 {
			return Identifier{}, "", fmt.Errorf("%w: unterminated quote", ErrInvalidIdentifier)
		}
		q := strings.TrimSpace(inner[:end])
		if q == "" {
			return Identifier{}, "", fmt.Errorf("%w: empty title", ErrInvalidIdentifier)
		}
		return Identifier{Query: q}, inner[end+len(string(closer)):], nil
	}

	tok, rest := body, ""
	if i := strings.IndexFunc(body, isSpace); i >= 0 {
		tok, rest = body[:i], body[i:]
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return Identifier{}, "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, tok)
	}
	return Identifier{Index: n}, rest, nil
}
