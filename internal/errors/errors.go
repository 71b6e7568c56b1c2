// Package errors provides structured error types for the welcome agent.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTimeout      = errors.New("operation timed out")
	ErrUnavailable  = errors.New("service unavailable")
	ErrNotConnected = errors.New("transport not connected")
	ErrRateLimit    = errors.New("rate limit exceeded")
)

// CodeKind says where an APIError code came from.
type CodeKind int

const (
	// KindRetcode is a OneBot action retcode from a decoded response body.
	KindRetcode CodeKind = iota
	// KindHTTP is a transport-level HTTP status (API or upgrade request).
	KindHTTP
)

func (k CodeKind) String() string {
	if k == KindHTTP {
		return "http"
	}
	return "retcode"
}

// APIError is a OneBot action the implementation rejected. Code is either
// the retcode of the action response (100 bad params, 102 bad data,
// 103 operation failed, 104 bad token, 201 worker failure, ...) or, for
// KindHTTP, the status of the HTTP exchange that carried the action.
type APIError struct {
	Action  string
	Kind    CodeKind
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("onebot %s failed (%s %d)", e.Action, e.Kind, e.Code)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *APIError) Unwrap() error { return e.Err }

// NewRetcodeError records a non-zero retcode returned for action.
func NewRetcodeError(action string, retcode int, message string) *APIError {
	return &APIError{Action: action, Kind: KindRetcode, Code: retcode, Message: message}
}

// NewHTTPError records a non-200 HTTP status returned for action.
func NewHTTPError(action string, status int, message string) *APIError {
	return &APIError{Action: action, Kind: KindHTTP, Code: status, Message: message}
}

// IsRetryable reports whether err is transient. Retcodes describe a
// request the implementation understood and refused, so only HTTP
// 429 and 5xx statuses and the transport sentinels are retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrNotConnected)
}
