package errlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the error log.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
)

// FileSink appends records to a log file, one line each:
//
//	2026-03-01T12:00:00Z - ERROR: {"kind":"http_status","message":"...","url":"..."}
//
// The file is rotated by size; rotated files keep the same line format.
type FileSink struct {
	mu     sync.Mutex
	path   string
	out    *lumberjack.Logger
	closed bool
}

// FileOptions configures rotation. Zero values select the defaults.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
}

// fileLine is the JSON payload of one line. The timestamp is the line prefix.
type fileLine struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// OpenFileSink opens path for appending. The file and its directory are
// created on the first record.
func OpenFileSink(path string, opts FileOptions) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("error log path is empty")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = DefaultMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}

	return &FileSink{
		path: path,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
	}, nil
}

// Path returns the log file path.
func (s *FileSink) Path() string {
	return s.path
}

// Record implements Sink.
func (s *FileSink) Record(_ context.Context, r Record) error {
	line, err := FormatLine(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	if _, err := s.out.Write([]byte(line)); err != nil {
		return fmt.Errorf("failed to append to error log: %w", err)
	}
	return nil
}

// Close closes the underlying file. Further records fail with os.ErrClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}

// FormatLine renders r in the error log line format, newline included.
func FormatLine(r Record) (string, error) {
	payload, err := json.Marshal(fileLine{Kind: r.Kind, Message: r.Message, URL: r.URL})
	if err != nil {
		return "", fmt.Errorf("failed to encode error record: %w", err)
	}
	return fmt.Sprintf("%s - ERROR: %s\n", r.Time.UTC().Format(time.RFC3339), payload), nil
}

// LoggerSink forwards records to a slog.Logger at error level.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink creates a LoggerSink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Record implements Sink.
func (s *LoggerSink) Record(ctx context.Context, r Record) error {
	s.logger.ErrorContext(ctx, r.Message, "kind", string(r.Kind), "url", r.URL)
	return nil
}
