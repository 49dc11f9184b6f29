package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// drainLimit bounds how much of a discarded (429 or error) body is read so the
// connection can be reused.
const drainLimit = 64 * 1024

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Response is a successful fetch.
type Response struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the final status, always below 400.
	StatusCode int

	// Header holds the final response headers.
	Header http.Header

	// Body is the decoded response body.
	Body []byte

	// Attempts is the number of HTTP requests issued, retries included.
	Attempts int
}

// Client issues GET requests and retries 429 responses according to its
// RetryPolicy. It is safe for concurrent use, but admits one request at a time.
type Client struct {
	httpClient  *http.Client
	policy      RetryPolicy
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger

	sleep   Sleeper
	now     func() time.Time
	onRetry func(RetryEvent)

	// limiter spaces requests by the crawl delay. Nil disables it.
	limiter *rate.Limiter

	// gate admits a single logical request, backoff sleeps included.
	gate *semaphore.Weighted
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy sets the 429 retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum response body size. 0 means unlimited.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		c.maxBodySize = size
	}
}

// WithLogger sets the logger used for retry and debug messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleeper replaces the backoff sleep. Tests use it to observe delays.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithClock replaces the clock used to evaluate HTTP-date Retry-After values.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRetryHook registers fn to be called before every backoff sleep.
func WithRetryHook(fn func(RetryEvent)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// WithCrawlDelay enforces a minimum spacing between requests.
func WithCrawlDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			c.limiter = nil
		}
	}
}

// New creates a Client. Without options it uses http.DefaultClient and
// DefaultRetryPolicy.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		policy:     DefaultRetryPolicy(),
		logger:     slog.New(slog.DiscardHandler),
		sleep:      sleepContext,
		now:        time.Now,
		gate:       semaphore.NewWeighted(1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Policy returns the retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Fetch returns the body of rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Do issues a GET for rawURL, retrying 429 responses.
//
// Failures are returned as *Error, except context cancellation which is
// returned as ctx.Err().
func (c *Client) Do(ctx context.Context, rawURL string) (*Response, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	state := RetryState{Request: Request{URL: rawURL}}

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, ctxErrOr(ctx, err)
			}
		}

		resp, err := c.send(ctx, state.Request)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, &Error{
					Kind:       KindHTTPStatus,
					URL:        rawURL,
					StatusCode: resp.StatusCode,
					Header:     resp.Header,
					Attempts:   state.Request.Attempt + 1,
				}
			}
			resp.Attempts = state.Request.Attempt + 1
			return resp, nil
		}

		state.LastStatus = resp.StatusCode
		state.LastHeader = resp.Header

		if state.Request.Attempt >= c.policy.MaxAttempts {
			return nil, &Error{
				Kind:       KindRateLimitExceeded,
				URL:        rawURL,
				StatusCode: state.LastStatus,
				Header:     state.LastHeader,
				Attempts:   state.Request.Attempt + 1,
			}
		}

		delay, fromHeader := c.policy.delay(resp.Header, state.Request.Attempt, c.now())
		state.LastDelay = delay

		// Retry-After is honoured as sent, however long; make a long wait visible.
		if fromHeader && delay > c.policy.MaxDelay {
			c.logger.Warn("Retry-After exceeds max delay, waiting anyway",
				"url", rawURL,
				"retry_after", resp.Header.Get("Retry-After"),
				"delay", delay,
				"max_delay", c.policy.MaxDelay)
		}

		event := RetryEvent{
			URL:        rawURL,
			Attempt:    state.Request.Attempt,
			Delay:      state.LastDelay,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
		c.logger.Warn("429 received, backing off",
			"url", rawURL,
			"attempt", event.Attempt,
			"delay", event.Delay,
			"retry_after", event.RetryAfter)
		if c.onRetry != nil {
			c.onRetry(event)
		}

		if err := c.sleep(ctx, state.LastDelay); err != nil {
			return nil, ctxErrOr(ctx, err)
		}
		state.Request.Attempt++
	}
}

// send performs one HTTP exchange. Error statuses are returned as responses;
// only transport-level failures become errors.
func (c *Client) send(ctx context.Context, r Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: r.URL, Attempts: r.Attempt + 1, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("sending request", "url", r.URL, "attempt", r.Attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindNetwork, URL: r.URL, Attempts: r.Attempt + 1, Err: err}
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        r.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit)) //nolint:errcheck // best-effort drain
		return out, nil
	}

	body, err := readBody(resp, c.maxBodySize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			Kind:       KindNetwork,
			URL:        r.URL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Attempts:   r.Attempt + 1,
			Err:        err,
		}
	}
	out.Body = body
	return out, nil
}

// readBody reads the (possibly brotli encoded) body, failing when it exceeds
// maxBytes. gzip is decoded by net/http itself.
func readBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	reader := io.Reader(resp.Body)

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "br" {
		reader = brotli.NewReader(resp.Body)
	}

	if maxBytes <= 0 {
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, maxBytes)
	}
	return body, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ctxErrOr prefers the context error so callers can tell cancellation apart
// from transport failures.
func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
