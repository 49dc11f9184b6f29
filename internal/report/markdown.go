package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/lexicrawl/internal/model"
)

// maxMarkdownEntries limits the entry table; larger runs only show a count.
const maxMarkdownEntries = 200

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary of report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	return w.WriteSimple(model.NewSimpleReport(report))
}

// WriteSimple outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeFailures(md, report)
	w.writeEntries(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by lexicrawl*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SimpleReport) {
	md.H1("lexicrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + report.Seed + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", report.Duration.Round(time.Millisecond).String()},
		{"Pages visited", strconv.Itoa(report.PagesVisited)},
		{"Pages failed", strconv.Itoa(report.PagesFailed)},
		{"Entries fetched", strconv.Itoa(report.DetailsFetched)},
		{"Entries failed", strconv.Itoa(report.DetailsFailed)},
	}
	if report.Exported > 0 {
		rows = append(rows, []string{"Entries exported", strconv.Itoa(report.Exported)})
	}
	rows = append(rows, []string{"Status", markdownStatus(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func markdownStatus(report *model.SimpleReport) string {
	switch {
	case report.Cancelled:
		return "⚠️ Cancelled (partial results)"
	case report.Error != "":
		return "❌ Error - " + report.Error
	case report.HasFailures():
		return "🟡 Complete with failures"
	default:
		return "✅ Complete"
	}
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Failures")
	md.PlainText("")

	if !report.HasFailures() {
		md.Tip("Every page and entry was fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.FailuresByKind))
	for _, kc := range report.FailuresByKind {
		rows = append(rows, []string{"`" + kc.Kind + "`", strconv.Itoa(kc.Count)})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.TotalFailures()) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, report)

	if report.PagesFailed > 0 {
		md.Warningf("%d listing page(s) failed. Pages linked only from them were not visited.", report.PagesFailed)
		md.PlainText("")
	}

	details := make([][]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		u := f.URL
		if u == "" {
			u = "-"
		}
		details = append(details, []string{f.Kind, truncateString(u, 80), truncateString(f.Message, 100)})
	}
	md.H3("Failure log")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "URL", "Message"},
		Rows:   details,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.SimpleReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Failures by kind"),
		piechart.WithShowData(true),
	)
	for _, kc := range report.FailuresByKind {
		chart.LabelAndIntValue(kc.Kind, uint64(kc.Count))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeEntries(md *markdown.Markdown, report *model.SimpleReport) {
	md.H2("Entries")
	md.PlainText("")

	if len(report.Entries) == 0 {
		md.PlainText("No entries collected.")
		md.PlainText("")
		return
	}
	if len(report.Entries) > maxMarkdownEntries {
		md.PlainTextf("%d entries collected.", len(report.Entries))
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Entries))
	for _, e := range report.Entries {
		rows = append(rows, []string{e.Name, strconv.Itoa(e.Size), truncateString(e.URL, 80)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Entry", "Bytes", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
