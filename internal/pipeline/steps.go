package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/lexicrawl/internal/crawler"
	"github.com/nao1215/lexicrawl/internal/database"
	"github.com/nao1215/lexicrawl/internal/errlog"
	"github.com/nao1215/lexicrawl/internal/model"
	"github.com/nao1215/lexicrawl/internal/report"
)

// CrawlStep runs the crawler for report.Seed and fills the report with
// its entries, visited pages, counters and failures.
type CrawlStep struct {
	// fetcher is the transport shared by every seed of a batch.
	fetcher crawler.Fetcher

	// opts are passed to the crawler created for each run.
	opts []crawler.Option

	// sink receives failure records next to the report, e.g. error.log.
	sink errlog.Sink

	// now stamps StartedAt and FinishedAt.
	now func() time.Time

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlerOptions passes options to every crawler the step creates.
func WithCrawlerOptions(opts ...crawler.Option) CrawlStepOption {
	return func(s *CrawlStep) {
		s.opts = append(s.opts, opts...)
	}
}

// WithCrawlSink also sends failure records to sink, e.g. an error.log file.
func WithCrawlSink(sink errlog.Sink) CrawlStepOption {
	return func(s *CrawlStep) {
		s.sink = sink
	}
}

// WithCrawlClock replaces the clock used for the report timestamps.
func WithCrawlClock(now func() time.Time) CrawlStepOption {
	return func(s *CrawlStep) {
		s.now = now
	}
}

// WithCrawlLogger sets a custom logger for the step and its crawler.
// If not set, slog.Default() is used.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step fetching through fetcher.
func NewCrawlStep(fetcher crawler.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher: fetcher,
		now:     time.Now,
		logger:  slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl. A configuration error or a cancellation is
// returned; every other failure is in report.Failures.
//
// The crawler always gets a fresh Frontier and VisitedSet, so a step can
// be reused for several seeds.
func (s *CrawlStep) Do(ctx context.Context, r *model.CrawlReport) error {
	// Failures go both to the configured sink and to memory for the report
	failures := errlog.NewMemorySink()

	opts := append([]crawler.Option{crawler.WithLogger(s.logger)}, s.opts...)
	opts = append(opts, crawler.WithSink(errlog.Multi(s.sink, failures)))
	c := crawler.New(s.fetcher, opts...)

	r.StartedAt = s.now()
	entries, err := c.Crawl(ctx, r.Seed)
	r.FinishedAt = s.now()

	// Copy results into the report; on cancellation these are partial
	r.Entries = append(r.Entries, entries...)
	r.Visited = c.Visited()
	r.Stats = c.Stats()
	// Convert the recorded failures to the report model
	for _, rec := range failures.Records() {
		r.Failures = append(r.Failures, model.Failure{
			Time:    rec.Time,
			Kind:    string(rec.Kind),
			Message: rec.Message,
			URL:     rec.URL,
		})
	}

	if err != nil {
		return fmt.Errorf("crawl %s: %w", r.Seed, err)
	}
	return nil
}

// ExportStep writes every entry to its own file.
// It is a Finalizer: entries collected before a cancellation are still
// written.
type ExportStep struct {
	// writer names and writes the entry files.
	writer *report.EntryFileWriter

	// unchanged maps entry URL to the hash stored by the previous run.
	// Entries with the same hash are not written again.
	unchanged map[string]string

	logger *slog.Logger
}

// ExportStepOption configures an ExportStep.
type ExportStepOption func(*ExportStep)

// WithSkipUnchanged skips entries whose hash equals previous[entry.URL].
// previous usually comes from database.RunDB.LatestHashes.
func WithSkipUnchanged(previous map[string]string) ExportStepOption {
	return func(s *ExportStep) {
		s.unchanged = previous
	}
}

// WithExportLogger sets a custom logger for the step.
// If not set, slog.Default() is used.
func WithExportLogger(logger *slog.Logger) ExportStepOption {
	return func(s *ExportStep) {
		s.logger = logger
	}
}

// NewExportStep creates an export step writing through w.
func NewExportStep(w *report.EntryFileWriter, opts ...ExportStepOption) *ExportStep {
	s := &ExportStep{writer: w, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// RunsAfterCancel implements Finalizer.
func (s *ExportStep) RunsAfterCancel() bool {
	return true
}

// Do writes the entries and sets report.Exported.
func (s *ExportStep) Do(ctx context.Context, r *model.CrawlReport) error {
	entries := r.Entries

	// Drop entries whose body did not change since the previous run
	if len(s.unchanged) > 0 {
		entries = make([]model.DetailResult, 0, len(r.Entries))
		for _, e := range r.Entries {
			if prev, ok := s.unchanged[e.URL]; ok && prev == e.Hash {
				continue
			}
			entries = append(entries, e)
		}
		s.logger.Debug("skipping unchanged entries", "skipped", len(r.Entries)-len(entries))
	}

	// Write the remaining entries; n counts the files actually written
	n, err := s.writer.WriteAll(ctx, entries)
	r.Exported = n
	s.logger.Info("entries exported", "count", n, "dir", s.writer.Dir())
	if err != nil {
		return fmt.Errorf("export entries: %w", err)
	}
	return nil
}

// PersistStep stores the report in the run database.
// It is a Finalizer, so interrupted runs are stored too (marked cancelled).
type PersistStep struct {
	// db is the run history; bodies are never stored, only their hashes.
	db *database.RunDB

	logger *slog.Logger
}

// NewPersistStep creates a persist step.
// A nil logger falls back to slog.Default().
func NewPersistStep(db *database.RunDB, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// RunsAfterCancel implements Finalizer.
func (s *PersistStep) RunsAfterCancel() bool {
	return true
}

// Do saves the report and sets report.ID.
func (s *PersistStep) Do(ctx context.Context, r *model.CrawlReport) error {
	id, err := s.db.SaveRun(ctx, r)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.logger.Debug("run saved", "id", id, "entries", len(r.Entries))
	return nil
}
