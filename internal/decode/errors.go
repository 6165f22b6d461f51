package decode

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInputShape = errors.New("invalid input shape")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrOracleFailure     = errors.New("oracle failure")
)

// Error is the only error type returned by Decode. It matches both its Kind
// and its cause with errors.Is.
type Error struct {
	Kind error
	// Step is the zero-based decode step, or -1 when the failure happened
	// during validation.
	Step int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Step >= 0 {
		msg = fmt.Sprintf("%s at step %d", msg, e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func shapeError(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInputShape, Step: -1, Err: fmt.Errorf(format, args...)}
}

func paramError(err error) error {
	return &Error{Kind: ErrInvalidParameter, Step: -1, Err: err}
}

func oracleError(step int, err error) error {
	return &Error{Kind: ErrOracleFailure, Step: step, Err: err}
}
