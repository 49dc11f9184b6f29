package transport

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/lexicrawl/internal/config"
)

// Request is one logical GET request.
// URL never changes; Attempt increments on each retry.
type Request struct {
	URL     string
	Attempt int
}

// RetryPolicy controls how 429 responses are retried.
// It is fixed when the Client is built.
type RetryPolicy struct {
	// MaxAttempts is the number of retries allowed. 0 disables retrying.
	MaxAttempts int

	// BaseDelay is the first exponential backoff step.
	BaseDelay time.Duration

	// MaxDelay caps each exponential backoff step. It does not cap Retry-After.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy built from the config defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: config.DefaultMaxAttempts,
		BaseDelay:   config.DefaultBaseDelay,
		MaxDelay:    config.DefaultMaxDelay,
	}
}

// Validate reports a policy that cannot be used as a *config.Error.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return config.NewError("max-attempts", config.ErrInvalidMaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return config.NewError("base-delay", config.ErrInvalidBaseDelay)
	}
	if p.MaxDelay <= 0 {
		return config.NewError("max-delay", config.ErrInvalidMaxDelay)
	}
	return nil
}

// Backoff returns min(BaseDelay * 2^attempt, MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		if d > math.MaxInt64/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Delay returns how long to wait before retrying a 429 response received on
// the given attempt. Retry-After wins over the exponential backoff.
func (p RetryPolicy) Delay(header http.Header, attempt int, now time.Time) time.Duration {
	d, _ := p.delay(header, attempt, now)
	return d
}

// delay is Delay that also reports whether the value came from Retry-After.
func (p RetryPolicy) delay(header http.Header, attempt int, now time.Time) (time.Duration, bool) {
	if d, ok := parseRetryAfter(header.Get("Retry-After"), now); ok {
		return d, true
	}
	return p.Backoff(attempt), false
}

// parseRetryAfter parses both Retry-After forms: delay-seconds and HTTP-date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	// delay-seconds, fractional values included ("1.5" is 1500ms)
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
			return 0, false
		}
		if seconds >= float64(math.MaxInt64)/float64(time.Second) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(seconds * float64(time.Second)), true
	}

	// HTTP-date

	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

// RetryState is the per-request retry bookkeeping.
// It lives on the stack of a single Do call and is never shared.
type RetryState struct {
	Request Request

	// LastDelay is the most recent backoff delay.
	LastDelay time.Duration

	// LastStatus and LastHeader describe the most recent 429 response.
	LastStatus int
	LastHeader http.Header
}

// RetryEvent is passed to the retry hook before each backoff sleep.
type RetryEvent struct {
	URL        string
	Attempt    int
	Delay      time.Duration
	StatusCode int
	RetryAfter string
}
