package transport

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a backend call failed.
type ErrorKind string

const (
	// KindNetwork means the backend could not be reached at all.
	KindNetwork ErrorKind = "network"
	// KindBackend means the backend answered with a failure.
	KindBackend ErrorKind = "backend"
)

// UnknownErrorMessage is used when a failure response carries no usable message.
const UnknownErrorMessage = "Unknown error"

// Error is returned by every Client call that fails.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackend:
		if e.StatusCode > 0 {
			return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("backend error: %s", e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err. Errors of any other type are reported
// as network failures so callers can always branch on Kind.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

func backendError(status int, message string) *Error {
	if message == "" {
		message = UnknownErrorMessage
	}
	return &Error{Kind: KindBackend, StatusCode: status, Message: message}
}
