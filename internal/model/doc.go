// Package model defines the data structures shared by the crawler, the
// reports and the run database.
//
// This package contains the following main types:
//   - DetailResult: The raw body of one fetched detail link
//   - CrawlReport: The outcome of one crawl run
//   - SimpleReport: A summarized, human-readable view of a CrawlReport
//
// Models live in their own package so that crawler, report, pipeline and
// database can share them without import cycles. They are serializable to
// JSON for report output and database storage.
package model
