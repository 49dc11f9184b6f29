package model

import "time"

// CrawlReport is the outcome of one crawl run.
// It holds everything the reports and the run database need.
type CrawlReport struct {
	// ID is the database identifier, 0 until the run is saved.
	ID int64 `json:"id,omitempty"`

	// Seed is the resolved seed URL.
	Seed string `json:"seed"`

	// BaseURL is the URL relative links were resolved against.
	BaseURL string `json:"base_url"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl returned.
	FinishedAt time.Time `json:"finished_at"`

	// Entries are the detail results in discovery order.
	Entries []DetailResult `json:"entries,omitempty"`

	// Failures are the recoverable failures in the order they happened.
	Failures []Failure `json:"failures,omitempty"`

	// Visited lists the listing pages in visit order.
	Visited []string `json:"visited,omitempty"`

	// Stats are the crawl counters.
	Stats CrawlStats `json:"stats"`

	// Exported is the number of entries written to the output directory.
	Exported int `json:"exported,omitempty"`

	// Cancelled is true when the crawl was interrupted and the results are partial.
	Cancelled bool `json:"cancelled"`

	// Error holds a fatal error, if any.
	Error error `json:"-"`
}

// Failure is one recoverable failure observed during a crawl.
type Failure struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	URL     string    `json:"url,omitempty"`
}

// CrawlStats contains crawl counters.
type CrawlStats struct {
	// PagesVisited is the number of listing pages fetched successfully.
	PagesVisited int `json:"pages_visited"`

	// PagesFailed is the number of listing pages that could not be fetched or parsed.
	PagesFailed int `json:"pages_failed"`

	// PagesSkipped is the number of dequeued URLs that were already visited.
	PagesSkipped int `json:"pages_skipped"`

	// DetailsFetched is the number of detail results collected.
	DetailsFetched int `json:"details_fetched"`

	// DetailsFailed is the number of detail links that produced no result.
	DetailsFailed int `json:"details_failed"`
}

// NewCrawlReport creates a report for the given seed.
func NewCrawlReport(seed, baseURL string) *CrawlReport {
	return &CrawlReport{
		Seed:      seed,
		BaseURL:   baseURL,
		StartedAt: time.Now(),
		Entries:   make([]DetailResult, 0),
		Failures:  make([]Failure, 0),
	}
}

// Duration returns how long the crawl ran.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailureCounts returns the number of failures per kind.
func (r *CrawlReport) FailureCounts() map[string]int {
	counts := make(map[string]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}

// HasFailures reports whether any failure was recorded.
func (r *CrawlReport) HasFailures() bool {
	return len(r.Failures) > 0
}
