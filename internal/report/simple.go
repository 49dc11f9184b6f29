package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/lexicrawl/internal/model"
)

// SimpleWriter outputs plain text summaries for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints the failure section even when nothing failed.
	showEmpty bool

	// verbose lists every entry and every failure message.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose lists entries and failure messages.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to output.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary of report.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	return w.WriteSimple(model.NewSimpleReport(report))
}

// WriteSimple outputs the summary.
func (w *SimpleWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCounters(&sb, report)
	w.writeFailures(&sb, report)
	w.writeEntries(&sb, report)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SimpleReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         LEXICRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:      %s\n", report.Seed)
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:    %s\n", statusText(report))
	sb.WriteString("\n")
}

func statusText(report *model.SimpleReport) string {
	switch {
	case report.Cancelled:
		return "CANCELLED (partial results)"
	case report.Error != "":
		return "ERROR - " + report.Error
	case report.HasFailures():
		return "Complete with failures"
	default:
		return "Complete"
	}
}

func (w *SimpleWriter) writeCounters(sb *strings.Builder, report *model.SimpleReport) {
	writeSection(sb, "SUMMARY")
	fmt.Fprintf(sb, "  Pages visited:    %d\n", report.PagesVisited)
	fmt.Fprintf(sb, "  Pages failed:     %d\n", report.PagesFailed)
	fmt.Fprintf(sb, "  Entries fetched:  %d\n", report.DetailsFetched)
	fmt.Fprintf(sb, "  Entries failed:   %d\n", report.DetailsFailed)
	if report.Exported > 0 {
		fmt.Fprintf(sb, "  Entries exported: %d\n", report.Exported)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.SimpleReport) {
	if !report.HasFailures() && !w.showEmpty {
		return
	}

	writeSection(sb, "FAILURES")
	if !report.HasFailures() {
		sb.WriteString("  No failures\n\n")
		return
	}

	for _, kc := range report.FailuresByKind {
		fmt.Fprintf(sb, "  [%s] %d\n", kc.Kind, kc.Count)
		if !w.verbose {
			continue
		}
		for _, f := range report.FailuresOfKind(kc.Kind) {
			if f.URL != "" {
				fmt.Fprintf(sb, "    * %s\n      %s\n", f.URL, f.Message)
			} else {
				fmt.Fprintf(sb, "    * %s\n", f.Message)
			}
		}
	}
	fmt.Fprintf(sb, "\n  TOTAL: %d failures\n\n", report.TotalFailures())
}

func (w *SimpleWriter) writeEntries(sb *strings.Builder, report *model.SimpleReport) {
	if !w.verbose || len(report.Entries) == 0 {
		return
	}

	writeSection(sb, "ENTRIES")
	for _, e := range report.Entries {
		fmt.Fprintf(sb, "  [+] %s (%d bytes)\n", e.Name, e.Size)
	}
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
