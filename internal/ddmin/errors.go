package ddmin

import (
	"errors"
	"fmt"
)

// ErrInvalidBaseline is returned when the boundary inputs do not classify
// as expected: the failing input must FAIL and the passing input must not.
var ErrInvalidBaseline = errors.New("invalid oracle baseline")

// BaselineError describes which boundary input misbehaved
type BaselineError struct {
	Boundary string // "failing" or "passing"
	Value    string
	Verdict  Verdict
	Detail   string
}

func (e *BaselineError) Error() string {
	msg := fmt.Sprintf("%s input classified as %s", e.Boundary, e.Verdict)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return fmt.Sprintf("%v: %s", ErrInvalidBaseline, msg)
}

// Unwrap allows errors.Is(err, ErrInvalidBaseline)
func (e *BaselineError) Unwrap() error {
	return ErrInvalidBaseline
}
