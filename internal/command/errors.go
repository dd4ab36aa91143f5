package command

import "errors"

// Parse errors. Callers match them with errors.Is; the transport renders
// them via Code.
var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrEmptyTitle        = errors.New("empty title")
	ErrTitleTooLong      = errors.New("title too long")
	ErrMissingDate       = errors.New("missing date")
	ErrInvalidDate       = errors.New("invalid date")
	ErrMissingTime       = errors.New("missing time")
	ErrInvalidTime       = errors.New("invalid time")
	ErrPastSchedule      = errors.New("scheduled time is in the past")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnknownCommand, "UnknownCommand"},
	{ErrEmptyTitle, "EmptyTitle"},
	{ErrTitleTooLong, "TitleTooLong"},
	{ErrMissingDate, "MissingDate"},
	{ErrInvalidDate, "InvalidDate"},
	{ErrMissingTime, "MissingTime"},
	{ErrInvalidTime, "InvalidTime"},
	{ErrPastSchedule, "PastSchedule"},
	{ErrInvalidIdentifier, "InvalidIdentifier"},
}

// Code returns a stable identifier for a parse error, "" for nil and
// "Internal" for anything that is not a parse error.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}
