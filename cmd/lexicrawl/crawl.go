package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/crawler"
	"github.com/nao1215/lexicrawl/internal/database"
	"github.com/nao1215/lexicrawl/internal/errlog"
	"github.com/nao1215/lexicrawl/internal/model"
	"github.com/nao1215/lexicrawl/internal/pipeline"
	"github.com/nao1215/lexicrawl/internal/report"
	"github.com/nao1215/lexicrawl/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed...]",
		Short: "Crawl a lexicon listing and download every entry",
		Long: `Crawl starts at a listing page, follows every "next" page link, and
downloads the XML chunk behind each entry link.

A seed may be an absolute URL or a path relative to --base-url. Pages are
visited at most once. Requests that fail are written to the error log and
skipped. HTTP 429 responses are retried up to --max-attempts times.

Press Ctrl-C to stop early: the entries collected so far are still
exported and saved to the run history.

Examples:
  # Crawl the lexicon starting at its first listing page
  lexicrawl crawl "text?doc=Perseus:text:1999.04.0057:alphabetic+letter=*a"

  # Save every entry as <key>.xml under ./entries
  lexicrawl crawl --out-dir entries "text?doc=..."

  # Only export entries that changed since the previous run
  lexicrawl crawl --out-dir entries --skip-unchanged "text?doc=..."

  # Be extra polite and write a Markdown report
  lexicrawl crawl --crawl-delay 2s -m -o report.md "text?doc=..."

Configuration file (.lexicrawl) example:
  baseURL: https://www.perseus.tufts.edu/hopper/
  crawlDelay: 1s
  retry:
    maxAttempts: 5
  sites:
    www.perseus.tufts.edu:
      cookie: "JSESSIONID=abc123"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Target flags
	cmd.Flags().StringP("base-url", "b", config.DefaultBaseURL,
		"URL that relative seeds and links are resolved against")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of listing pages to visit (0 = unlimited)")

	// Transport flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int("max-attempts", config.DefaultMaxAttempts,
		"Retries allowed after an HTTP 429 response")
	cmd.Flags().Duration("base-delay", config.DefaultBaseDelay,
		"First exponential backoff step")
	cmd.Flags().Duration("max-delay", config.DefaultMaxDelay,
		"Upper bound of each exponential backoff step")
	cmd.Flags().DurationP("crawl-delay", "d", config.DefaultCrawlDelay,
		"Minimum delay between two requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes (0 = unlimited)")
	cmd.Flags().StringP("user-agent", "A", "",
		"User-Agent header sent with every request")
	cmd.Flags().StringP("proxy", "x", "",
		"Proxy URL (socks5://host:port or http://host:port)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .lexicrawl in current or home directory)")

	// Output flags
	cmd.Flags().StringP("out-dir", "O", "",
		"Write every entry to its own file in this directory")
	cmd.Flags().Bool("skip-unchanged", false,
		"Do not export entries whose content matches the previous run")
	cmd.Flags().Bool("no-identify", false,
		"Accept detail payloads without an entry key")
	cmd.Flags().StringP("error-log", "e", "",
		"Failure log path (default: error.log in the data directory)")
	cmd.Flags().Bool("no-error-log", false,
		"Log failures to stderr instead of a file")
	cmd.Flags().Bool("no-db", false,
		"Do not save this run to the run history")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, seeds, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, keeping partial results")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, seeds, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from defaults, the configuration file and
// the flags that were set explicitly, then validates it.
// It returns the seeds resolved against the base URL.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, []string, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, nil, config.NewError("config", fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath))
	default:
		cfg.File = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	// Flags given on the command line win over the file.
	overrides := []error{
		overrideString(flags, "base-url", &cfg.BaseURL),
		overrideInt(flags, "max-pages", &cfg.MaxPages),
		overrideDuration(flags, "timeout", &cfg.Timeout),
		overrideInt(flags, "max-attempts", &cfg.MaxAttempts),
		overrideDuration(flags, "base-delay", &cfg.BaseDelay),
		overrideDuration(flags, "max-delay", &cfg.MaxDelay),
		overrideDuration(flags, "crawl-delay", &cfg.CrawlDelay),
		overrideInt64(flags, "max-body-size", &cfg.MaxBodySize),
		overrideString(flags, "user-agent", &cfg.UserAgent),
		overrideString(flags, "proxy", &cfg.ProxyURL),
		overrideString(flags, "out-dir", &cfg.OutputDir),
		overrideString(flags, "error-log", &cfg.ErrorLogPath),
		overrideString(flags, "output", &cfg.ReportFile),
	}
	if err := errors.Join(overrides...); err != nil {
		return nil, nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, nil, err
	}
	if cfg.SkipUnchanged, err = flags.GetBool("skip-unchanged"); err != nil {
		return nil, nil, err
	}

	noIdentify, err := flags.GetBool("no-identify")
	if err != nil {
		return nil, nil, err
	}
	if noIdentify {
		cfg.Identifier = config.IdentifierRule{}
	}

	noErrorLog, err := flags.GetBool("no-error-log")
	if err != nil {
		return nil, nil, err
	}
	if noErrorLog {
		cfg.ErrorLogPath = ""
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.DBDir = config.XDGDataDir()
	cfg.Verbose = getBoolFlag(cmd, "verbose")

	if len(args) > 0 {
		cfg.Seed = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	seeds := make([]string, 0, len(args))
	for _, arg := range args {
		u, err := config.ResolveURL(cfg.BaseURL, arg)
		if err != nil {
			return nil, nil, config.NewError("seed", fmt.Errorf("%w: %q", config.ErrInvalidSeed, arg))
		}
		seeds = append(seeds, u.String())
	}

	return cfg, seeds, nil
}

func overrideString(flags *pflag.FlagSet, name string, dst *string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideInt64(flags *pflag.FlagSet, name string, dst *int64) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideDuration(flags *pflag.FlagSet, name string, dst *time.Duration) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// runCrawl crawls every seed in order and writes one report per seed.
func runCrawl(ctx context.Context, cfg *config.Config, seeds []string, logger *slog.Logger, out io.Writer) error {
	var retries atomic.Int64
	client, err := newTransport(cfg, logger, func(transport.RetryEvent) { retries.Add(1) })
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	var db *database.RunDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	factory := func(seed string) *pipeline.Pipeline {
		return newPipeline(ctx, cfg, seed, client, sink, db, logger)
	}
	batch := pipeline.NewBatch(factory,
		pipeline.WithBatchLogger(logger),
		pipeline.WithBatchBaseURL(cfg.BaseURL),
	)

	var outputErr error
	reports, err := batch.Run(ctx, seeds, func(r *model.CrawlReport, index int) {
		if err := outputReport(cfg, r, out, index); err != nil {
			logger.Error("report failed", "seed", r.Seed, "error", err)
			outputErr = errors.Join(outputErr, err)
		}
	})

	if n := retries.Load(); n > 0 {
		logger.Info("rate limit retries", "count", n)
	}

	if err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}
	for _, r := range reports {
		if crawler.IsConfigurationError(r.Error) {
			return r.Error
		}
	}
	return outputErr
}

// newTransport builds the single-flow HTTP client for a crawl.
func newTransport(cfg *config.Config, logger *slog.Logger, onRetry func(transport.RetryEvent)) (*transport.Client, error) {
	hc, err := transport.NewHTTPClient(transport.HTTPOptions{
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
		Sites:    cfg.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	policy := transport.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return transport.New(
		transport.WithHTTPClient(hc),
		transport.WithRetryPolicy(policy),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithMaxBodySize(cfg.MaxBodySize),
		transport.WithCrawlDelay(cfg.CrawlDelay),
		transport.WithLogger(logger),
		transport.WithRetryHook(onRetry),
	), nil
}

// openSink opens the failure log. Without a path, failures go to the logger.
func openSink(cfg *config.Config, logger *slog.Logger) (errlog.Sink, func(), error) {
	if cfg.ErrorLogPath == "" {
		return errlog.NewLoggerSink(logger), func() {}, nil
	}

	fs, err := errlog.OpenFileSink(cfg.ErrorLogPath, errlog.FileOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open error log: %w", err)
	}
	logger.Debug("error log opened", "path", fs.Path())

	return fs, func() {
		if err := fs.Close(); err != nil {
			logger.Error("failed to close error log", "error", err)
		}
	}, nil
}

// newPipeline creates the crawl, export and persist pipeline for one seed.
func newPipeline(ctx context.Context, cfg *config.Config, seed string, client *transport.Client, sink errlog.Sink, db *database.RunDB, logger *slog.Logger) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	crawlerOpts := []crawler.Option{
		crawler.WithBaseURL(cfg.BaseURL),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithExtractor(crawler.NewLinkExtractor(cfg.Classification)),
	}
	if cfg.Identifier.Enabled() {
		crawlerOpts = append(crawlerOpts, crawler.WithIdentifier(crawler.NewAttrIdentifier(cfg.Identifier)))
	}

	p.AddStep(pipeline.NewCrawlStep(client,
		pipeline.WithCrawlerOptions(crawlerOpts...),
		pipeline.WithCrawlSink(sink),
		pipeline.WithCrawlLogger(logger),
	))

	if cfg.OutputDir != "" {
		exportOpts := []pipeline.ExportStepOption{pipeline.WithExportLogger(logger)}
		if cfg.SkipUnchanged {
			exportOpts = append(exportOpts, skipUnchangedOption(ctx, db, seed, logger)...)
		}
		p.AddStep(pipeline.NewExportStep(report.NewEntryFileWriter(cfg.OutputDir), exportOpts...))
	}

	if db != nil {
		p.AddStep(pipeline.NewPersistStep(db, logger))
	}

	return p
}

// skipUnchangedOption loads the hashes of the previous run of seed.
func skipUnchangedOption(ctx context.Context, db *database.RunDB, seed string, logger *slog.Logger) []pipeline.ExportStepOption {
	if db == nil {
		logger.Warn("--skip-unchanged needs the run history; exporting every entry")
		return nil
	}

	hashes, err := db.LatestHashes(ctx, seed)
	if err != nil {
		logger.Warn("failed to load previous run, exporting every entry", "seed", seed, "error", err)
		return nil
	}
	return []pipeline.ExportStepOption{pipeline.WithSkipUnchanged(hashes)}
}

// outputReport outputs the crawl report in the requested format.
// With several seeds, later reports are appended to the report file.
func outputReport(cfg *config.Config, r *model.CrawlReport, stdout io.Writer, index int) error {
	output := stdout
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if index > 0 {
			flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(cfg.ReportFile, flag, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(r)
	return err
}
