package acq

import (
	"errors"
	"fmt"
)

// Code is the outcome of a session operation.
type Code int

const (
	Ok Code = iota
	InvalidArgument
	ResourceBusy
	ResourceUnavailable
	ConfigurationError
	AlreadyRunning
	NotRunning
	UnsupportedOperation
	GeneralError
)

var codeNames = [...]string{
	Ok:                   "ok",
	InvalidArgument:      "invalid argument",
	ResourceBusy:         "resource busy",
	ResourceUnavailable:  "resource unavailable",
	ConfigurationError:   "configuration error",
	AlreadyRunning:       "already running",
	NotRunning:           "not running",
	UnsupportedOperation: "unsupported operation",
	GeneralError:         "general error",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return codeNames[c]
}

// Sentinels matched by errors.Is against any *Error carrying the same code.
var (
	ErrInvalidArgument      = errors.New(InvalidArgument.String())
	ErrResourceBusy         = errors.New(ResourceBusy.String())
	ErrResourceUnavailable  = errors.New(ResourceUnavailable.String())
	ErrConfiguration        = errors.New(ConfigurationError.String())
	ErrAlreadyRunning       = errors.New(AlreadyRunning.String())
	ErrNotRunning           = errors.New(NotRunning.String())
	ErrUnsupportedOperation = errors.New(UnsupportedOperation.String())
	ErrGeneral              = errors.New(GeneralError.String())
)

var sentinels = map[Code]error{
	InvalidArgument:      ErrInvalidArgument,
	ResourceBusy:         ErrResourceBusy,
	ResourceUnavailable:  ErrResourceUnavailable,
	ConfigurationError:   ErrConfiguration,
	AlreadyRunning:       ErrAlreadyRunning,
	NotRunning:           ErrNotRunning,
	UnsupportedOperation: ErrUnsupportedOperation,
	GeneralError:         ErrGeneral,
}

// Error is returned by every failing session operation.
type Error struct {
	Op   string // operation that failed, e.g. "prepare"
	Code Code
	Err  error // underlying cause, may be nil
}

func newError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// CodeOf returns the code carried by err: Ok for nil, GeneralError for
// errors that did not come from a session.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return GeneralError
}
