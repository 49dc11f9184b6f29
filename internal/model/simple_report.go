package model

import (
	"sort"
	"time"
)

// SimpleReport is a summarized, human-readable view of a CrawlReport.
//
// It separates presentation from collection: the text, JSON and Markdown
// writers all render the same curated view.
type SimpleReport struct {
	// Seed is the resolved seed URL.
	Seed string `json:"seed"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the crawl wall time.
	Duration time.Duration `json:"duration"`

	// === Counters ===

	PagesVisited   int `json:"pages_visited"`
	PagesFailed    int `json:"pages_failed"`
	DetailsFetched int `json:"details_fetched"`
	DetailsFailed  int `json:"details_failed"`
	Exported       int `json:"exported,omitempty"`

	// FailuresByKind counts failures per kind.
	FailuresByKind []KindCount `json:"failures_by_kind,omitempty"`

	// Failures lists every recorded failure.
	Failures []Failure `json:"failures,omitempty"`

	// Entries lists the collected entries by name.
	Entries []EntrySummary `json:"entries,omitempty"`

	// Cancelled indicates the crawl was interrupted.
	Cancelled bool `json:"cancelled"`

	// Error contains any fatal error message.
	Error string `json:"error,omitempty"`
}

// KindCount is the number of failures of one kind.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// EntrySummary describes one collected entry without its body.
type EntrySummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// NewSimpleReport creates a SimpleReport from a CrawlReport.
func NewSimpleReport(report *CrawlReport) *SimpleReport {
	simple := &SimpleReport{
		Seed:           report.Seed,
		StartedAt:      report.StartedAt,
		Duration:       report.Duration(),
		PagesVisited:   report.Stats.PagesVisited,
		PagesFailed:    report.Stats.PagesFailed,
		DetailsFetched: report.Stats.DetailsFetched,
		DetailsFailed:  report.Stats.DetailsFailed,
		Exported:       report.Exported,
		Failures:       report.Failures,
		Cancelled:      report.Cancelled,
	}

	if report.Error != nil {
		simple.Error = report.Error.Error()
	}

	simple.countByKind(report)

	for _, e := range report.Entries {
		simple.Entries = append(simple.Entries, EntrySummary{
			Name: e.Name(),
			URL:  e.URL,
			Size: e.Size,
		})
	}

	return simple
}

// countByKind fills FailuresByKind, largest count first, ties by kind name.
func (s *SimpleReport) countByKind(report *CrawlReport) {
	for kind, count := range report.FailureCounts() {
		s.FailuresByKind = append(s.FailuresByKind, KindCount{Kind: kind, Count: count})
	}
	sort.Slice(s.FailuresByKind, func(i, j int) bool {
		if s.FailuresByKind[i].Count != s.FailuresByKind[j].Count {
			return s.FailuresByKind[i].Count > s.FailuresByKind[j].Count
		}
		return s.FailuresByKind[i].Kind < s.FailuresByKind[j].Kind
	})
}

// TotalFailures returns the number of failures.
func (s *SimpleReport) TotalFailures() int {
	return len(s.Failures)
}

// HasFailures returns true if any failure was recorded.
func (s *SimpleReport) HasFailures() bool {
	return len(s.Failures) > 0
}

// FailuresOfKind returns the failures of the given kind.
func (s *SimpleReport) FailuresOfKind(kind string) []Failure {
	var out []Failure
	for _, f := range s.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
