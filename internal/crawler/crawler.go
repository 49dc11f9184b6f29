package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/errlog"
	"github.com/nao1215/lexicrawl/internal/model"
)

// Fetcher returns the body of an absolute URL.
// *transport.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Crawler walks listing pages breadth-first and collects detail bodies.
//
// A Crawler may be reused; each Crawl call starts with a fresh Frontier and
// VisitedSet. Visited and Stats describe the most recent crawl.
type Crawler struct {
	fetcher    Fetcher
	extractor  Extractor
	identifier Identifier
	sink       errlog.Sink
	logger     *slog.Logger
	now        func() time.Time

	// baseURL is what relative links and a relative seed are resolved
	// against. Empty means the resolved seed itself.
	baseURL string

	// maxPages stops the crawl after this many listing pages. 0 = unlimited.
	maxPages int

	// mu protects visited and stats, which callers may read while a crawl runs.
	mu      sync.Mutex
	visited *VisitedSet
	stats   model.CrawlStats
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithExtractor sets the link extractor.
func WithExtractor(e Extractor) Option {
	return func(c *Crawler) {
		if e != nil {
			c.extractor = e
		}
	}
}

// WithIdentifier validates every detail payload with id.
func WithIdentifier(id Identifier) Option {
	return func(c *Crawler) {
		c.identifier = id
	}
}

// WithSink sets the failure sink.
func WithSink(s errlog.Sink) Option {
	return func(c *Crawler) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseURL sets the URL relative links are resolved against.
func WithBaseURL(base string) Option {
	return func(c *Crawler) {
		c.baseURL = base
	}
}

// WithMaxPages sets the maximum number of listing pages to visit.
func WithMaxPages(maxPages int) Option {
	return func(c *Crawler) {
		c.maxPages = maxPages
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Crawler that fetches through fetcher.
// By default it uses the lexicon classification rule, no identifier, and
// discards failure records.
func New(fetcher Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:   fetcher,
		extractor: NewLinkExtractor(config.DefaultClassificationRule()),
		sink:      errlog.Discard,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		visited:   NewVisitedSet(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Crawl walks the listing pages reachable from seed and returns the detail
// results in discovery order.
//
// An unusable seed or base URL returns a *config.Error before any request.
// Per-URL failures are recorded and skipped. If ctx is cancelled, the
// results collected so far are returned together with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, seed string) ([]model.DetailResult, error) {
	base := c.baseURL
	if base != "" {
		if _, err := config.ParseAbsoluteURL(base); err != nil {
			return nil, config.NewError("base-url", config.ErrInvalidBaseURL)
		}
	}

	seedURL, err := config.ResolveURL(base, seed)
	if err != nil {
		return nil, config.NewError("seed", config.ErrInvalidSeed)
	}
	if base == "" {
		base = seedURL.String()
	}

	frontier := NewFrontier(seedURL.String())
	visited := NewVisitedSet()

	c.mu.Lock()
	c.visited = visited
	c.stats = model.CrawlStats{}
	c.mu.Unlock()

	c.logger.Info("crawl started", "seed", seedURL.String(), "base", base)

	results := make([]model.DetailResult, 0)

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		pageURL, ok := frontier.Pop()
		if !ok {
			break
		}

		c.mu.Lock()
		if visited.Contains(pageURL) {
			c.stats.PagesSkipped++
			c.mu.Unlock()
			c.logger.Debug("skipping visited page", "url", pageURL)
			continue
		}
		if c.maxPages > 0 && visited.Len() >= c.maxPages {
			c.mu.Unlock()
			c.logger.Info("page limit reached", "max_pages", c.maxPages)
			break
		}
		visited.Add(pageURL)
		c.mu.Unlock()

		links, err := c.processPage(ctx, base, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			c.count(func(s *model.CrawlStats) { s.PagesFailed++ })
			c.fail(ctx, pageURL, err)
			continue
		}
		c.count(func(s *model.CrawlStats) { s.PagesVisited++ })

		for _, detailURL := range links.Details {
			detail, err := c.fetchDetail(ctx, pageURL, detailURL)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return results, ctxErr
				}
				c.count(func(s *model.CrawlStats) { s.DetailsFailed++ })
				c.fail(ctx, detailURL, err)
				continue
			}
			results = append(results, detail)
			c.count(func(s *model.CrawlStats) { s.DetailsFetched++ })
		}

		frontier.Push(links.Pages...)
	}

	stats := c.Stats()
	c.logger.Info("crawl finished",
		"pages", stats.PagesVisited,
		"details", stats.DetailsFetched,
		"failures", stats.PagesFailed+stats.DetailsFailed)

	return results, nil
}

// processPage fetches one listing page and classifies its links.
func (c *Crawler) processPage(ctx context.Context, base, pageURL string) (Links, error) {
	c.logger.Debug("fetching page", "url", pageURL)

	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Links{}, err
	}

	links, err := c.extractor.Extract(base, body)
	if err != nil {
		return Links{}, &ExtractionError{URL: pageURL, Err: err}
	}

	c.logger.Debug("page classified",
		"url", pageURL,
		"page_links", len(links.Pages),
		"detail_links", len(links.Details))
	return links, nil
}

// fetchDetail fetches one detail link and identifies its payload.
func (c *Crawler) fetchDetail(ctx context.Context, pageURL, detailURL string) (model.DetailResult, error) {
	c.logger.Debug("fetching detail", "url", detailURL)

	body, err := c.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return model.DetailResult{}, err
	}

	result := model.DetailResult{
		URL:        detailURL,
		SourcePage: pageURL,
		Body:       body,
		FetchedAt:  c.now(),
	}

	if c.identifier != nil {
		key, err := c.identifier.Identify(body)
		if err != nil {
			return model.DetailResult{}, &ExtractionError{URL: detailURL, Err: err}
		}
		result.Key = key
	}

	result.ComputeHash()
	return result, nil
}

// fail hands a per-URL failure to the sink. A failing sink is logged but
// never stops the crawl.
func (c *Crawler) fail(ctx context.Context, rawURL string, err error) {
	c.logger.Warn("skipping after failure", "url", rawURL, "error", err)

	if sinkErr := c.sink.Record(ctx, errlog.NewRecord(c.now(), rawURL, err)); sinkErr != nil {
		c.logger.Error("failed to record failure", "url", rawURL, "error", sinkErr)
	}
}

func (c *Crawler) count(update func(*model.CrawlStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.stats)
}

// Visited returns the listing pages of the most recent crawl in visit order.
func (c *Crawler) Visited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visited.URLs()
}

// Stats returns the counters of the most recent crawl.
func (c *Crawler) Stats() model.CrawlStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// IsConfigurationError reports whether err aborted a crawl before it started.
func IsConfigurationError(err error) bool {
	var cfgErr *config.Error
	return errors.As(err, &cfgErr)
}
