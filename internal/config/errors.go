package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors.
// These errors are returned by Config.Validate() and wrapped in *Error so that
// callers can both match the specific rule with errors.Is() and recognise the
// whole class of configuration failures with errors.As().
var (
	// ErrNoSeed is returned when no seed URL or path is given.
	ErrNoSeed = errors.New("no seed specified: provide a seed URL or a path relative to --base-url")

	// ErrInvalidSeed is returned when the seed cannot be resolved to an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed: must resolve to an absolute http or https URL")

	// ErrInvalidBaseURL is returned when the base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxAttempts is returned when the retry attempt limit is negative.
	// Zero is valid and disables retries entirely.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be non-negative")

	// ErrInvalidBaseDelay is returned when the backoff base delay is not positive.
	ErrInvalidBaseDelay = errors.New("invalid base delay: must be positive")

	// ErrInvalidMaxDelay is returned when the backoff cap is not positive.
	ErrInvalidMaxDelay = errors.New("invalid max delay: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidProxy is returned when the proxy URL has an unsupported form.
	ErrInvalidProxy = errors.New("invalid proxy: expected socks5://host:port or http(s)://host:port")

	// ErrIncompleteRule is returned when a classification rule has an empty field.
	ErrIncompleteRule = errors.New("incomplete classification rule: every field must be set")
)

// Error reports a configuration problem. It is fatal: it surfaces to the caller
// before any request is issued.
type Error struct {
	// Field names the setting that failed validation, if known.
	Field string

	// Err is the underlying sentinel or parse error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a configuration error for the given field.
func NewError(field string, err error) *Error {
	return &Error{Field: field, Err: err}
}
