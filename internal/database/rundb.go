package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/lexicrawl/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "lexicrawl.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores crawl runs, their entries and their failures.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the run database in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (r *RunDB) Path() string {
	return r.dbPath
}

// Close closes the database connection.
func (r *RunDB) Close() error {
	return r.db.Close()
}

func (r *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		base_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		pages_failed INTEGER NOT NULL DEFAULT 0,
		pages_skipped INTEGER NOT NULL DEFAULT 0,
		details_fetched INTEGER NOT NULL DEFAULT 0,
		details_failed INTEGER NOT NULL DEFAULT 0,
		exported INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		visited_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Entries keep the hash, not the body; bodies live in the output directory.
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		source_page TEXT,
		entry_key TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		hash TEXT,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
	CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(entry_key);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		time TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		url TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
	`

	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores report with its entries and failures in one transaction
// and sets report.ID.
func (r *RunDB) SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error) {
	visitedJSON, err := json.Marshal(report.Visited)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize visited pages: %w", err)
	}

	var errMsg sql.NullString
	if report.Error != nil {
		errMsg = sql.NullString{String: report.Error.Error(), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed, base_url, started_at, finished_at,
		pages_visited, pages_failed, pages_skipped, details_fetched, details_failed,
		exported, cancelled, error, visited_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Seed,
		report.BaseURL,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Stats.PagesVisited,
		report.Stats.PagesFailed,
		report.Stats.PagesSkipped,
		report.Stats.DetailsFetched,
		report.Stats.DetailsFailed,
		report.Exported,
		report.Cancelled,
		errMsg,
		string(visitedJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for i, e := range report.Entries {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (run_id, position, url, source_page, entry_key, size, hash, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, e.URL, e.SourcePage, e.Key, e.Size, e.Hash, formatTimestamp(e.FetchedAt),
		); err != nil {
			return 0, fmt.Errorf("failed to insert entry %s: %w", e.URL, err)
		}
	}

	for i, f := range report.Failures {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO failures (run_id, position, time, kind, message, url)
		VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, formatTimestamp(f.Time), f.Kind, f.Message, f.URL,
		); err != nil {
			return 0, fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	report.ID = id
	return id, nil
}

// RunSummary contains the metadata of one run without its entries.
type RunSummary struct {
	ID             int64
	Seed           string
	StartedAt      time.Time
	FinishedAt     time.Time
	PagesVisited   int
	DetailsFetched int
	Failures       int
	Exported       int
	Cancelled      bool
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (r *RunDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
	SELECT r.id, r.seed, r.started_at, r.finished_at, r.pages_visited, r.details_fetched,
		(SELECT COUNT(*) FROM failures f WHERE f.run_id = r.id), r.exported, r.cancelled
	FROM runs r
	ORDER BY r.id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		var startedAt, finishedAt string
		if err := rows.Scan(&s.ID, &s.Seed, &startedAt, &finishedAt,
			&s.PagesVisited, &s.DetailsFetched, &s.Failures, &s.Exported, &s.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		s.FinishedAt = parseTimestamp(finishedAt)
		runs = append(runs, s)
	}

	return runs, rows.Err()
}

// GetRun loads a run with its entries and failures.
// It returns ErrRunNotFound if no run has the given ID.
func (r *RunDB) GetRun(ctx context.Context, id int64) (*model.CrawlReport, error) {
	report := &model.CrawlReport{ID: id}

	var startedAt, finishedAt string
	var errMsg, visitedJSON sql.NullString
	err := r.db.QueryRowContext(ctx, `
	SELECT seed, base_url, started_at, finished_at,
		pages_visited, pages_failed, pages_skipped, details_fetched, details_failed,
		exported, cancelled, error, visited_json
	FROM runs WHERE id = ?`, id).Scan(
		&report.Seed,
		&report.BaseURL,
		&startedAt,
		&finishedAt,
		&report.Stats.PagesVisited,
		&report.Stats.PagesFailed,
		&report.Stats.PagesSkipped,
		&report.Stats.DetailsFetched,
		&report.Stats.DetailsFailed,
		&report.Exported,
		&report.Cancelled,
		&errMsg,
		&visitedJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	report.StartedAt = parseTimestamp(startedAt)
	report.FinishedAt = parseTimestamp(finishedAt)
	if errMsg.Valid && errMsg.String != "" {
		report.Error = errors.New(errMsg.String)
	}
	if visitedJSON.Valid && visitedJSON.String != "" {
		if err := json.Unmarshal([]byte(visitedJSON.String), &report.Visited); err != nil {
			return nil, fmt.Errorf("failed to parse visited pages: %w", err)
		}
	}

	if report.Entries, err = r.entries(ctx, "WHERE run_id = ? ORDER BY position", id); err != nil {
		return nil, err
	}
	if report.Failures, err = r.failures(ctx, id); err != nil {
		return nil, err
	}

	return report, nil
}

// EntryHistory returns every stored version of the entry with the given
// key, most recent run first.
func (r *RunDB) EntryHistory(ctx context.Context, key string) ([]model.DetailResult, error) {
	return r.entries(ctx, "WHERE entry_key = ? ORDER BY run_id DESC, position", key)
}

// LatestHashes returns the hash of every entry stored by the most recent
// run of seed, keyed by entry URL. It is empty when seed was never crawled.
func (r *RunDB) LatestHashes(ctx context.Context, seed string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT url, hash FROM entries
	WHERE run_id = (SELECT MAX(id) FROM runs WHERE seed = ?)`, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var u string
		var h sql.NullString
		if err := rows.Scan(&u, &h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		hashes[u] = h.String
	}
	return hashes, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (r *RunDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// modernc.org/sqlite leaves foreign keys off by default.
	for _, q := range []string{
		"DELETE FROM entries WHERE run_id = ?",
		"DELETE FROM failures WHERE run_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete run %d: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}

	return tx.Commit()
}

func (r *RunDB) entries(ctx context.Context, where string, arg any) ([]model.DetailResult, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT url, source_page, entry_key, size, hash, fetched_at
	FROM entries `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.DetailResult, 0)
	for rows.Next() {
		var e model.DetailResult
		var sourcePage, key, hash sql.NullString
		var fetchedAt string
		if err := rows.Scan(&e.URL, &sourcePage, &key, &e.Size, &hash, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.SourcePage = sourcePage.String
		e.Key = key.String
		e.Hash = hash.String
		e.FetchedAt = parseTimestamp(fetchedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *RunDB) failures(ctx context.Context, runID int64) ([]model.Failure, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT time, kind, message, url FROM failures
	WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	failures := make([]model.Failure, 0)
	for rows.Next() {
		var f model.Failure
		var ts string
		var u sql.NullString
		if err := rows.Scan(&ts, &f.Kind, &f.Message, &u); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Time = parseTimestamp(ts)
		f.URL = u.String
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known format and returns the zero time if
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
