package errlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/transport"
)

// Kind classifies a recorded failure.
type Kind string

const (
	// KindRateLimitExceeded: retries were exhausted against HTTP 429.
	KindRateLimitExceeded = Kind(transport.KindRateLimitExceeded)

	// KindHTTPStatus: a non-429 error status was received.
	KindHTTPStatus = Kind(transport.KindHTTPStatus)

	// KindNetwork: no usable response was received.
	KindNetwork = Kind(transport.KindNetwork)

	// KindExtraction: a body could not be parsed or lacked its identifier.
	KindExtraction Kind = "extraction"

	// KindConfiguration: the crawl could not start.
	KindConfiguration Kind = "configuration"

	// KindUnknown is used for errors that carry no classification.
	KindUnknown Kind = "error"
)

// Kinds lists every known kind in report order.
func Kinds() []Kind {
	return []Kind{
		KindRateLimitExceeded,
		KindHTTPStatus,
		KindNetwork,
		KindExtraction,
		KindConfiguration,
		KindUnknown,
	}
}

// Classifier is implemented by errors that know their own Kind.
type Classifier interface {
	ErrorKind() Kind
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	if k, ok := transport.KindOf(err); ok {
		return Kind(k)
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return KindConfiguration
	}
	return KindUnknown
}

// Record is one recoverable failure.
type Record struct {
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	URL     string    `json:"url,omitempty"`
}

// NewRecord builds a Record for err observed while handling rawURL.
func NewRecord(now time.Time, rawURL string, err error) Record {
	r := Record{
		Time: now,
		Kind: KindOf(err),
		URL:  rawURL,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Sink receives failure records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, r Record) error
}

// Discard is a Sink that drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Record) error { return nil }

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (m *MemorySink) Record(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of the recorded entries in arrival order.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Len returns the number of records.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Counts returns the number of records per kind.
func (m *MemorySink) Counts() map[Kind]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Kind]int)
	for _, r := range m.records {
		counts[r.Kind]++
	}
	return counts
}

// Multi returns a Sink that forwards every record to each of sinks.
// All sinks are tried; their errors are joined.
func Multi(sinks ...Sink) Sink {
	filtered := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

type multi []Sink

func (m multi) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
