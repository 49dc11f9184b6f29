package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/lexicrawl/internal/model"
)

// Batch crawls several seeds one after another, each with a fresh
// pipeline from the factory. Seeds never run concurrently: they share one
// transport and therefore one upstream rate limit.
type Batch struct {
	// pipelineFactory builds the pipeline for one seed. It receives the
	// seed so that per-seed state (such as the previous run's hashes) can
	// be loaded.
	pipelineFactory func(seed string) *Pipeline

	// baseURL is recorded in every report.
	baseURL string

	// logger is used for batch progress messages.
	logger *slog.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithBatchLogger sets a custom logger for the batch.
// If not set, slog.Default() is used.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Batch) {
		b.logger = logger
	}
}

// WithBatchBaseURL sets the base URL recorded in every report.
func WithBatchBaseURL(base string) BatchOption {
	return func(b *Batch) {
		b.baseURL = base
	}
}

// NewBatch creates a Batch.
func NewBatch(pipelineFactory func(seed string) *Pipeline, opts ...BatchOption) *Batch {
	b := &Batch{pipelineFactory: pipelineFactory}

	// Apply options
	for _, opt := range opts {
		opt(b)
	}
	// Set default logger if not provided
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Run crawls seeds in order and calls onReport after each one.
// A failed seed does not stop the batch; its error is in the report.
// Cancellation stops the batch after the current seed and returns
// the reports so far with ctx.Err().
func (b *Batch) Run(ctx context.Context, seeds []string, onReport func(report *model.CrawlReport, index int)) ([]*model.CrawlReport, error) {
	b.logger.Info("starting batch", "seeds", len(seeds))
	startTime := time.Now()

	reports := make([]*model.CrawlReport, 0, len(seeds))
	for i, seed := range seeds {
		// Check for cancellation before starting each seed
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		b.logger.Info("crawling seed", "seed", seed, "index", i+1, "total", len(seeds))

		// Each seed gets its own report and a fresh pipeline, so visited
		// pages and counters never leak between seeds.
		report := model.NewCrawlReport(seed, b.baseURL)
		if err := b.pipelineFactory(seed).Execute(ctx, report); err != nil {
			b.logger.Warn("crawl failed", "seed", seed, "error", err)
		}

		// Hand the report out as soon as it is ready
		reports = append(reports, report)
		if onReport != nil {
			onReport(report, i)
		}
	}

	b.logger.Info("batch complete", "seeds", len(seeds), "elapsed", time.Since(startTime))
	return reports, ctx.Err()
}
