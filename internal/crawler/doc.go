// Package crawler provides the traversal engine that walks a chain of
// listing pages and collects the detail resources they link to.
//
// # Architecture
//
// The package is designed around the Crawler type, which coordinates the
// crawl. It owns a Frontier (FIFO queue of listing pages) and a VisitedSet,
// and drives two collaborators:
//
//   - Fetcher: returns the body of a URL (transport.Client in production)
//   - Extractor: splits a listing page body into page links and detail links
//
// An optional Identifier validates every detail payload and extracts its key.
//
// # Traversal
//
// The crawl is breadth-first and single-flow: a page is fully processed,
// all of its detail links included, before the next page is dequeued. URLs
// are resolved against the crawl base and compared as exact strings. The
// dedup check happens at dequeue time, so the Frontier may hold duplicates
// but no page is fetched twice.
//
// # Failures
//
// Only configuration errors abort a crawl. Every per-URL failure is handed
// to the errlog.Sink and the crawl continues with the next URL; the caller
// always receives whatever was collected.
//
// # Usage
//
//	c := crawler.New(client,
//		crawler.WithBaseURL("https://www.perseus.tufts.edu/hopper/"),
//		crawler.WithSink(sink),
//	)
//	results, err := c.Crawl(ctx, "text?doc=Perseus:text:1999.04.0057")
package crawler
