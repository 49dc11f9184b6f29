package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a transport failure.
// The string values double as error kinds in the failure log.
type Kind string

const (
	// KindRateLimitExceeded means every allowed retry was answered with 429.
	KindRateLimitExceeded Kind = "rate_limit_exceeded"

	// KindHTTPStatus means the server answered with a non-429 status >= 400.
	KindHTTPStatus Kind = "http_status"

	// KindNetwork means no usable response was received.
	KindNetwork Kind = "network"
)

// Sentinel errors matched by (*Error).Is, one per Kind.
var (
	// ErrRateLimitExceeded is matched by errors of kind KindRateLimitExceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrHTTPStatus is matched by errors of kind KindHTTPStatus.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrNetwork is matched by errors of kind KindNetwork.
	ErrNetwork = errors.New("network failure")

	// ErrBodyTooLarge is returned (wrapped in a KindNetwork error) when a
	// response body exceeds the configured maximum size.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")

	// ErrTooManyRedirects is returned (wrapped in a KindNetwork error) when a
	// redirect chain is longer than the client follows.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Error is the error returned by Client for every failed fetch.
// It carries the last response's status and headers when one was received.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// URL is the requested URL.
	URL string

	// StatusCode is the last status received, 0 for network failures.
	StatusCode int

	// Header holds the last response headers, nil for network failures.
	Header http.Header

	// Attempts is the number of HTTP requests issued for this fetch.
	Attempts int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimitExceeded:
		return fmt.Sprintf("%s: rate limit exceeded after %d attempts (status %d)", e.URL, e.Attempts, e.StatusCode)
	case KindHTTPStatus:
		return fmt.Sprintf("%s: HTTP status %d", e.URL, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: network error: %v", e.URL, e.Err)
		}
		return fmt.Sprintf("%s: network error", e.URL)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error for e.Kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindRateLimitExceeded:
		return target == ErrRateLimitExceeded
	case KindHTTPStatus:
		return target == ErrHTTPStatus
	case KindNetwork:
		return target == ErrNetwork
	default:
		return false
	}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
