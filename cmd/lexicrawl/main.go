// Package main provides the entry point for the lexicrawl CLI.
//
// lexicrawl walks the paginated listing of an online lexicon, downloads the
// XML chunk behind every entry link, and keeps a history of its runs.
//
// Usage:
//
//	lexicrawl crawl <seed>
//	lexicrawl runs
//
// See --help for all available options.
package main

// main is the entry point for lexicrawl.
func main() {
	Execute()
}
