package jassist

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrStaleJob is returned when a job row changed between read and write.
var ErrStaleJob = errors.New("job was modified concurrently")

// ErrorKind is the closed set of failure categories a transport adapter may report.
type ErrorKind string

const (
	KindRateLimit      ErrorKind = "rate_limit"
	KindConnection     ErrorKind = "connection"
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindPermission     ErrorKind = "permission"
	KindAPIError       ErrorKind = "api_error"
	KindUnknown        ErrorKind = "unknown"
)

// DefaultRetryAfter is suggested to callers hitting a rate limit.
const DefaultRetryAfter = 60 * time.Second

// TransportError is the only error type remote adapters hand back to orchestration code.
type TransportError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the kind is worth another attempt.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindConnection, KindAPIError:
		return true
	}
	return false
}

// NewTransportError builds a TransportError with the standard remediation message for kind.
// detail is appended for the kinds whose message carries the provider text.
func NewTransportError(kind ErrorKind, status int, detail string, err error) *TransportError {
	te := &TransportError{
		Kind:       kind,
		Message:    Remediation(kind, detail),
		StatusCode: status,
		Err:        err,
	}
	if kind == KindRateLimit {
		te.RetryAfter = DefaultRetryAfter
	}
	return te
}

// KindForStatus maps an HTTP status code onto an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindPermission
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500:
		return KindAPIError
	}
	return KindUnknown
}

// Remediation returns the human-readable message attached to each kind.
func Remediation(kind ErrorKind, detail string) string {
	switch kind {
	case KindRateLimit:
		return "rate limit exceeded, please try again later"
	case KindConnection:
		return "could not connect to the remote API, check the network connection"
	case KindAuth:
		return "invalid API key or authentication failure"
	case KindInvalidRequest:
		return "invalid request: " + detail
	case KindPermission:
		return "no permission to use this model or feature"
	case KindAPIError:
		return "remote API error: " + detail
	}
	if detail == "" {
		return "unexpected error"
	}
	return "unexpected error: " + detail
}

// AsTransportError extracts a *TransportError from err's chain.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ConfigurationError is fatal to starting a run and is never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

// Configf builds a ConfigurationError.
func Configf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ValidationError is fatal to a single item.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalidf builds a ValidationError.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ClassificationError is raised when the assistant could not produce an answer within the retry budget.
type ClassificationError struct {
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
