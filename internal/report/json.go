package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/lexicrawl/internal/model"
)

// JSONWriter outputs reports in JSON format.
// Write emits the summary; FullJSONWriter emits the whole CrawlReport.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary of report.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(model.NewSimpleReport(report))
}

// WriteSimple outputs the summary.
func (w *JSONWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	return w.writeJSON(report)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport is the full report wrapped with the version that produced it.
type JSONReport struct {
	Version string              `json:"version"`
	Report  *model.CrawlReport  `json:"report"`
	Summary *model.SimpleReport `json:"summary"`
	Error   string              `json:"error,omitempty"`
}

// NewJSONReport creates a JSONReport for report.
func NewJSONReport(report *model.CrawlReport, version string) *JSONReport {
	r := &JSONReport{
		Version: version,
		Report:  report,
		Summary: model.NewSimpleReport(report),
	}
	if report.Error != nil {
		r.Error = report.Error.Error()
	}
	return r
}

// FullJSONWriter outputs complete reports, entries and visited pages included.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for complete reports.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the full report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}
