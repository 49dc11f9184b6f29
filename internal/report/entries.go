package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/lexicrawl/internal/config"
	"github.com/nao1215/lexicrawl/internal/model"
)

// EntryFileWriter writes each entry body to <dir>/<name><suffix>.
// An existing file with the same name is overwritten.
type EntryFileWriter struct {
	dir    string
	suffix string
}

// EntryFileOption configures an EntryFileWriter.
type EntryFileOption func(*EntryFileWriter)

// WithSuffix sets the file name suffix (default ".xml").
func WithSuffix(suffix string) EntryFileOption {
	return func(w *EntryFileWriter) {
		w.suffix = suffix
	}
}

// NewEntryFileWriter creates an EntryFileWriter for dir.
func NewEntryFileWriter(dir string, opts ...EntryFileOption) *EntryFileWriter {
	w := &EntryFileWriter{
		dir:    dir,
		suffix: config.DefaultEntryFileSuffix,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the output directory.
func (w *EntryFileWriter) Dir() string {
	return w.dir
}

// WriteEntry writes one entry and returns the file path.
func (w *EntryFileWriter) WriteEntry(e model.DetailResult) (string, error) {
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(w.dir, EntryFileName(e, w.suffix))
	if err := os.WriteFile(path, e.Body, 0600); err != nil {
		return "", fmt.Errorf("failed to write entry %s: %w", e.Name(), err)
	}
	return path, nil
}

// WriteAll writes every entry, continuing past failures. It returns the
// number of files written and the joined per-entry errors.
func (w *EntryFileWriter) WriteAll(ctx context.Context, entries []model.DetailResult) (int, error) {
	var errs []error
	written := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if _, err := w.WriteEntry(e); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	return written, errors.Join(errs...)
}

// EntryFileName returns the file name for e: its key, NFC-normalized and
// made safe for the file system. Entries without a key are named after
// their hash.
func EntryFileName(e model.DetailResult, suffix string) string {
	name := sanitizeFileName(e.Key)
	if name == "" {
		if len(e.Hash) >= 12 {
			name = "entry-" + e.Hash[:12]
		} else {
			name = "entry"
		}
	}
	return name + suffix
}

func sanitizeFileName(key string) string {
	key = norm.NFC.String(strings.TrimSpace(key))

	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, key)

	// No hidden files and no "." or "..".
	return strings.TrimLeft(name, ".")
}
