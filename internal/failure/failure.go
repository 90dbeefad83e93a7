// Package failure defines the closed set of failure kinds a capture run can produce
// and how they are reported across step boundaries.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// Config is a missing or invalid startup value. Fatal before automation begins.
	Config Kind = "CONFIG"

	// Decode is a performance-log entry that is not a usable network event.
	// It never leaves the capture package.
	Decode Kind = "DECODE"

	// Interaction is an element that never appeared or a click/type that failed.
	Interaction Kind = "INTERACTION"

	// Persistence is a record store write that failed after its single retry.
	Persistence Kind = "PERSISTENCE"

	// NoMatch means the target request was not observed within the capture window.
	NoMatch Kind = "NO_MATCH"
)

// Error is a failure tagged with its kind and the step that produced it.
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Step != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Step != "":
		return fmt.Sprintf("%s: %s", e.Step, kindText(e.Kind))
	default:
		return kindText(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a failure of the given kind for step.
func New(kind Kind, step string, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, step, format string, args ...any) *Error {
	return &Error{Kind: kind, Step: step, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries a failure of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func kindText(k Kind) string {
	switch k {
	case Config:
		return "configuration error"
	case Decode:
		return "undecodable log entry"
	case Interaction:
		return "interaction failed"
	case Persistence:
		return "persistence failed"
	case NoMatch:
		return "no matching request observed"
	default:
		return "unknown failure"
	}
}
