package agenda

import (
	"errors"

	"remindly/internal/command"
)

var (
	// ErrNoMatch means an identifier selected no active task.
	ErrNoMatch = errors.New("no matching task")
	// ErrAmbiguous means a title substring selected more than one task.
	ErrAmbiguous = errors.New("identifier matches more than one task")
	// ErrNothingToUpdate means an update command carried no changes.
	ErrNothingToUpdate = errors.New("nothing to update")
)

// Code maps err to a stable code for the transport. Parse errors keep the
// codes assigned by the command package.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoMatch):
		return "NoMatch"
	case errors.Is(err, ErrAmbiguous):
		return "Ambiguous"
	case errors.Is(err, ErrNothingToUpdate):
		return "NothingToUpdate"
	}
	return command.Code(err)
}

// IsUserError reports whether err is caused by the command text rather
// than by the service.
func IsUserError(err error) bool {
	c := Code(err)
	return c != "" && c != "Internal"
}
