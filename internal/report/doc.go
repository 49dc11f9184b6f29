// Package report renders crawl results.
//
//   - SimpleWriter: plain text summary for the terminal
//   - JSONWriter: the summary or the full report as JSON
//   - MarkdownWriter: a Markdown summary with a mermaid chart of failure kinds
//   - EntryFileWriter: one <key>.xml file per collected entry
//
// The text, JSON and Markdown writers implement Writer and render
// model.SimpleReport, so they always agree on what a run looked like.
package report
