package crawler

import (
	"errors"
	"fmt"

	"github.com/nao1215/lexicrawl/internal/errlog"
)

// Extraction errors.
var (
	// ErrMissingIdentifier is returned when a detail payload lacks the
	// configured identifying element or attribute.
	ErrMissingIdentifier = errors.New("missing identifying attribute")

	// ErrUnparsableBody is returned when a body cannot be parsed at all.
	ErrUnparsableBody = errors.New("unparsable body")
)

// ExtractionError reports a body that could not be parsed or a detail
// payload that lacked its identifier. Only the affected item is skipped.
type ExtractionError struct {
	// URL is the page or detail URL whose body failed.
	URL string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies the error for the failure log.
func (e *ExtractionError) ErrorKind() errlog.Kind {
	return errlog.KindExtraction
}
