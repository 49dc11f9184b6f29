// Package database stores the history of crawl runs in SQLite.
//
// Each run records its counters, the entries it collected (without bodies)
// and its failures, so past runs can be listed and compared with
// `lexicrawl runs`.
//
// The driver is modernc.org/sqlite, a CGO-free implementation, so the
// database is a single file under the XDG data directory.
package database
