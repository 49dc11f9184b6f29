// Package pipeline runs a crawl and its follow-up work as ordered steps.
//
// The default pipeline is crawl → export → persist. Each step receives the
// model.CrawlReport built so far. Steps that implement Finalizer still run
// after the context is cancelled, so an interrupted crawl keeps its
// partial results on disk and in the run database.
//
// Batch runs several seeds one after another, each through a fresh pipeline.
package pipeline
