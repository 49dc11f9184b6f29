// Package errlog is the append-only side channel that receives one record
// per recoverable crawl failure.
//
// The crawler never aborts on a per-URL failure. It hands the failure to a
// Sink and moves on, so the caller gets whatever was collected plus a full
// record of what was skipped and why.
//
// Sinks:
//   - FileSink appends "<RFC3339> - ERROR: <json>" lines to a size-rotated file
//   - LoggerSink forwards to a *slog.Logger
//   - MemorySink keeps records for reports and tests
//   - Multi fans out to several sinks
package errlog
