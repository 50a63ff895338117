package engine

import (
	"errors"
	"fmt"
)

// ErrDependencyUnavailable wraps any store failure seen by the engine.
// The engine never substitutes a default answer for a failed count.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

type dependencyError struct {
	op  string
	err error
}

func (e *dependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *dependencyError) Unwrap() []error {
	return []error{ErrDependencyUnavailable, e.err}
}

func unavailable(op string, err error) error {
	return &dependencyError{op: op, err: err}
}
