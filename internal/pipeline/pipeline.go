package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/lexicrawl/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the report
// filled in by the steps before it: the crawl step collects entries and
// failures, export writes the entries out, persist stores the run.
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation and the report to modify.
	// Recoverable problems (a page that failed, an entry that could not be
	// written) belong in the report and Do returns nil; a returned error
	// marks the whole step as failed.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Finalizer is a Step that must run even after cancellation.
// It receives a context that is never cancelled, so a crawl interrupted
// with Ctrl-C still exports and stores what it collected.
type Finalizer interface {
	Step

	// RunsAfterCancel reports whether the step runs once ctx is done.
	RunsAfterCancel() bool
}

// Pipeline orchestrates the execution of multiple steps for one seed.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and the first error is
// stored in report.Error, but subsequent steps still execute: a failed
// export must not stop the run from being stored.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	// Set default logger if not provided
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// It checks for cancellation before each step and logs each step's execution.
//
// Once ctx is cancelled, report.Cancelled is set, remaining ordinary steps
// are skipped and Finalizers still run with context.WithoutCancel. Execute
// then returns ctx.Err().
//
// Otherwise it returns the first error encountered if continueOnError is
// false, or nil (errors are recorded in report.Error).
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	for _, step := range p.steps {
		stepCtx := ctx

		// Check for cancellation before starting each step
		if ctx.Err() != nil {
			report.Cancelled = true
			if !runsAfterCancel(step) {
				p.logger.Warn("step skipped after cancellation", "step", step.Name())
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}

		p.logger.Debug("executing step", "step", step.Name(), "seed", report.Seed)

		// Execute the step
		err := step.Do(stepCtx, report)
		if err == nil {
			p.logger.Debug("step completed", "step", step.Name(), "seed", report.Seed)
			continue
		}

		// A step cut short by cancellation is not a failure; the partial
		// report is kept and the finalizers still run.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Cancelled = true
			p.logger.Warn("step interrupted", "step", step.Name(), "reason", err)
			continue
		}

		// Record the error in the report
		p.logger.Error("step failed", "step", step.Name(), "seed", report.Seed, "error", err)
		if report.Error == nil {
			report.Error = err
		}

		// Stop or continue based on configuration
		if !p.continueOnError {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return err
	}
	return nil
}

// runsAfterCancel reports whether step is a Finalizer that asked to run
// after cancellation.
func runsAfterCancel(step Step) bool {
	f, ok := step.(Finalizer)
	return ok && f.RunsAfterCancel()
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
