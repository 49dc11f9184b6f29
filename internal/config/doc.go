// Package config provides configuration structures and utilities for lexicrawl.
// It defines crawl settings, the retry policy values, link classification rules,
// and the per-site options that can be loaded from a YAML file.
package config
