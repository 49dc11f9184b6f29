package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/errlog"
	"github.com/nao1215/lexicrawl/internal/transport"
)

// site serves a fixed set of paths and counts hits per path.
type site struct {
	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	hits   map[string]int
}

func newSite(pages map[string]string) *site {
	return &site{pages: pages, status: map[string]int{}, hits: map[string]int{}}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.RequestURI()]++
	code, forced := s.status[r.URL.RequestURI()]
	body, ok := s.pages[r.URL.RequestURI()]
	s.mu.Unlock()

	if forced {
		w.WriteHeader(code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = fmt.Fprint(w, body)
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func nextLink(href string) string {
	return fmt.Sprintf(`<a class="arrow" href="%s"><img alt="next" src="n.gif"></a>`, href)
}

func detailLink(href string) string {
	return fmt.Sprintf(`<a class="xml" href="%s">xml</a>`, href)
}

func listing(links ...string) string {
	return "<html><body>" + strings.Join(links, "\n") + "</body></html>"
}

func entry(key string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><entryFree id="n1" key="%s">sense</entryFree>`, key)
}

// httpFetcher is a plain Fetcher used where retry behaviour does not matter.
type httpFetcher struct{}

func (httpFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return transport.New().Fetch(ctx, rawURL)
}

func TestCrawlExample(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/p0":           listing(detailLink("/xmlchunk?d=1"), nextLink("/p1")),
		"/p1":           listing(detailLink("/xmlchunk?d=2")),
		"/xmlchunk?d=1": entry("a"),
		"/xmlchunk?d=2": entry("b"),
	})
	server := httptest.NewServer(s)
	defer server.Close()

	sink := errlog.NewMemorySink()
	c := New(httpFetcher{}, WithSink(sink))

	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if string(results[0].Body) != entry("a") || string(results[1].Body) != entry("b") {
		t.Errorf("unexpected result bodies: %q, %q", results[0].Body, results[1].Body)
	}
	if results[0].SourcePage != server.URL+"/p0" {
		t.Errorf("expected source page p0, got %q", results[0].SourcePage)
	}
	if results[0].Hash == "" || results[0].Size != len(entry("a")) {
		t.Errorf("expected hash and size to be set, got %+v", results[0])
	}

	visited := c.Visited()
	want := []string{server.URL + "/p0", server.URL + "/p1"}
	if strings.Join(visited, ",") != strings.Join(want, ",") {
		t.Errorf("Visited() = %v, want %v", visited, want)
	}
	if sink.Len() != 0 {
		t.Errorf("expected no failures, got %v", sink.Records())
	}

	stats := c.Stats()
	if stats.PagesVisited != 2 || stats.DetailsFetched != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCrawlNoRevisit(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/p0": listing(nextLink("/p1")),
		"/p1": listing(nextLink("/p0"), nextLink("/p1")),
	})
	server := httptest.NewServer(s)
	defer server.Close()

	c := New(httpFetcher{})
	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}

	for _, path := range []string{"/p0", "/p1"} {
		if got := s.hitCount(path); got != 1 {
			t.Errorf("expected %s fetched once, got %d", path, got)
		}
	}
	if len(c.Visited()) != 2 {
		t.Errorf("expected 2 visited pages, got %v", c.Visited())
	}
	if c.Stats().PagesSkipped != 2 {
		t.Errorf("expected 2 skipped pages, got %d", c.Stats().PagesSkipped)
	}
}

func TestCrawlPreservesOrder(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/p0": listing(
			detailLink("/xmlchunk?d=3"),
			detailLink("/xmlchunk?d=1"),
			nextLink("/p1"),
			detailLink("/xmlchunk?d=2"),
		),
		"/p1":           listing(detailLink("/xmlchunk?d=1")),
		"/xmlchunk?d=1": entry("one"),
		"/xmlchunk?d=2": entry("two"),
		"/xmlchunk?d=3": entry("three"),
	})
	server := httptest.NewServer(s)
	defer server.Close()

	c := New(httpFetcher{}, WithIdentifier(NewAttrIdentifier(config.IdentifierRule{
		Element:   "entryFree",
		Attribute: "key",
	})))
	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.Key)
	}
	// Detail links are not deduplicated across pages.
	if got, want := strings.Join(keys, ","), "three,one,two,one"; got != want {
		t.Errorf("keys = %s, want %s", got, want)
	}
}

func TestCrawlPartialFailure(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/p0":           listing(detailLink("/xmlchunk?d=1"), nextLink("/p1")),
		"/p1":           listing(detailLink("/xmlchunk?d=2"), nextLink("/p2")),
		"/p2":           listing(detailLink("/xmlchunk?d=3")),
		"/xmlchunk?d=1": entry("a"),
		"/xmlchunk?d=2": entry("b"),
		"/xmlchunk?d=3": entry("c"),
	})
	s.status["/p1"] = http.StatusInternalServerError
	server := httptest.NewServer(s)
	defer server.Close()

	sink := errlog.NewMemorySink()
	c := New(httpFetcher{}, WithSink(sink))
	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(results) != 1 || string(results[0].Body) != entry("a") {
		t.Fatalf("expected only the first page's detail, got %d results", len(results))
	}
	if s.hitCount("/p2") != 0 {
		t.Error("expected p2 to be unreachable after p1 failed")
	}

	records := sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(records))
	}
	if records[0].Kind != errlog.KindHTTPStatus {
		t.Errorf("expected kind %s, got %s", errlog.KindHTTPStatus, records[0].Kind)
	}
	if records[0].URL != server.URL+"/p1" {
		t.Errorf("expected failure URL p1, got %s", records[0].URL)
	}
	if c.Stats().PagesFailed != 1 {
		t.Errorf("expected 1 failed page, got %d", c.Stats().PagesFailed)
	}
}

func TestCrawlDetailFailures(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/p0": listing(
			detailLink("/xmlchunk?d=1"),
			detailLink("/xmlchunk?d=2"),
			detailLink("/xmlchunk?d=3"),
		),
		"/xmlchunk?d=1": entry("a"),
		"/xmlchunk?d=2": "<entryFree>no key</entryFree>",
	})
	server := httptest.NewServer(s)
	defer server.Close()

	sink := errlog.NewMemorySink()
	c := New(httpFetcher{},
		WithSink(sink),
		WithIdentifier(NewAttrIdentifier(config.IdentifierRule{Element: "entryFree", Attribute: "key"})),
	)
	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}

	if len(results) != 1 || results[0].Key != "a" {
		t.Fatalf("expected only entry a, got %+v", results)
	}

	counts := sink.Counts()
	if counts[errlog.KindExtraction] != 1 {
		t.Errorf("expected 1 extraction failure, got %v", counts)
	}
	if counts[errlog.KindHTTPStatus] != 1 {
		t.Errorf("expected 1 http_status failure, got %v", counts)
	}
	if c.Stats().DetailsFailed != 2 {
		t.Errorf("expected 2 failed details, got %d", c.Stats().DetailsFailed)
	}
}

func TestCrawlSeedFailure(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{})
	server := httptest.NewServer(s)
	defer server.Close()

	sink := errlog.NewMemorySink()
	c := New(httpFetcher{}, WithSink(sink))
	results, err := c.Crawl(context.Background(), server.URL+"/missing")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if sink.Len() != 1 {
		t.Errorf("expected seed failure to be recorded, got %d records", sink.Len())
	}
}

func TestCrawlConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		seed string
		want error
	}{
		{name: "relative seed without base", seed: "p0", want: config.ErrInvalidSeed},
		{name: "unsupported scheme", seed: "ftp://example.com/p0", want: config.ErrInvalidSeed},
		{name: "invalid base", base: "not a url", seed: "/p0", want: config.ErrInvalidBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &countingFetcher{}
			c := New(fetcher, WithBaseURL(tt.base))
			_, err := c.Crawl(context.Background(), tt.seed)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsConfigurationError(err) {
				t.Errorf("expected a configuration error, got %T", err)
			}
			if fetcher.calls != 0 {
				t.Errorf("expected no requests, got %d", fetcher.calls)
			}
		})
	}
}

func TestCrawlRelativeSeed(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/hopper/p0":           listing(detailLink("xmlchunk?d=1")),
		"/hopper/xmlchunk?d=1": entry("a"),
	})
	server := httptest.NewServer(s)
	defer server.Close()

	c := New(httpFetcher{}, WithBaseURL(server.URL+"/hopper/"))
	results, err := c.Crawl(context.Background(), "p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].URL != server.URL+"/hopper/xmlchunk?d=1" {
		t.Errorf("unexpected detail URL %s", results[0].URL)
	}
}

// countingFetcher serves listing pages that link to the next numbered page.
type countingFetcher struct {
	mu     sync.Mutex
	calls  int
	onCall func(n int)
}

func (f *countingFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}
	return []byte(listing(
		detailLink(fmt.Sprintf("/xmlchunk?from=%d", n)),
		nextLink(fmt.Sprintf("/p%d", n)),
	)), nil
}

func TestCrawlMaxPages(t *testing.T) {
	t.Parallel()

	c := New(&countingFetcher{}, WithMaxPages(3))
	results, err := c.Crawl(context.Background(), "http://example.com/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if got := len(c.Visited()); got != 3 {
		t.Errorf("expected 3 visited pages, got %d", got)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 detail results, got %d", len(results))
	}
}

func TestCrawlCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Call 1 is p0, call 2 its detail, call 3 p1, call 4 its detail.
	fetcher := &countingFetcher{onCall: func(n int) {
		if n == 4 {
			cancel()
		}
	}}

	c := New(fetcher)
	results, err := c.Crawl(ctx, "http://example.com/p0")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) == 0 {
		t.Error("expected partial results to be returned")
	}
	if fetcher.calls > 4 {
		t.Errorf("expected crawl to stop after cancellation, got %d calls", fetcher.calls)
	}
}

func TestCrawlUsesFixedClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &countingFetcher{}
	c := New(fetcher, WithMaxPages(1), WithClock(func() time.Time { return fixed }))

	results, err := c.Crawl(context.Background(), "http://example.com/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(results) != 1 || !results[0].FetchedAt.Equal(fixed) {
		t.Errorf("expected FetchedAt %v, got %+v", fixed, results)
	}
}

func TestCrawlWithRetryingTransport(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p0":
			mu.Lock()
			hits++
			n := hits
			mu.Unlock()
			if n == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = fmt.Fprint(w, listing(detailLink("/xmlchunk?d=1")))
		case "/xmlchunk":
			_, _ = fmt.Fprint(w, entry("a"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	retries := 0
	client := transport.New(
		transport.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		transport.WithRetryHook(func(transport.RetryEvent) { retries++ }),
	)

	sink := errlog.NewMemorySink()
	c := New(client, WithSink(sink))
	results, err := c.Crawl(context.Background(), server.URL+"/p0")
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if retries != 1 {
		t.Errorf("expected 1 retry, got %d", retries)
	}
	if sink.Len() != 0 {
		t.Errorf("expected a recovered 429 not to be recorded, got %v", sink.Records())
	}
}

func TestCrawlRateLimitExhausted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := transport.New(
		transport.WithRetryPolicy(transport.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		transport.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)

	sink := errlog.NewMemorySink()
	c := New(client, WithSink(sink))
	if _, err := c.Crawl(context.Background(), server.URL+"/p0"); err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if got := sink.Counts()[errlog.KindRateLimitExceeded]; got != 1 {
		t.Errorf("expected 1 rate_limit_exceeded record, got %d", got)
	}
}
