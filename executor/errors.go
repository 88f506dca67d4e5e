package executor

import (
	"errors"
	"fmt"
)

// ErrUnavailable means a driver name is not in the registry. It is an
// ordinary, recoverable result: the caller may degrade gracefully.
var ErrUnavailable = errors.New("driver unavailable")

// Infrastructure failures. Any of these aborts the whole invocation.
var (
	ErrUnreachable     = errors.New("no code deployed at address")
	ErrDepthExceeded   = errors.New("delegate depth exceeded")
	ErrUnknownSelector = errors.New("unknown selector")
	ErrPanic           = errors.New("module panicked")
	ErrTimeout         = errors.New("invocation timed out")
)

// InfraError is an infrastructure-level failure of a delegate call or
// invocation. Once one occurs (outside a best-effort call) the
// invocation is aborted and its storage writes are discarded, even if
// the module swallows the error.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string { return "infra: " + e.Op + ": " + e.Err.Error() }

func (e *InfraError) Unwrap() error { return e.Err }

func infra(op string, err error) *InfraError {
	var ie *InfraError
	if errors.As(err, &ie) {
		return ie
	}
	return &InfraError{Op: op, Err: err}
}

// AppError is an application-level failure reported by a delegate's own
// logic. It is returned to the caller as a value and never aborts.
type AppError struct {
	Code    string
	Message string
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Fail builds an AppError.
func Fail(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsInfra reports whether err carries an InfraError.
func IsInfra(err error) bool {
	var ie *InfraError
	return errors.As(err, &ie)
}

// IsApp reports whether err carries an AppError.
func IsApp(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}
