// Package ledger records scan runs and per-document outcomes in SQLite or Postgres.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/justMega/barcode-pdf-pc/internal/domain"
)

// Supported drivers. DriverNone disables the ledger.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout sorts lexically in chronological order for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scan_runs (
		id            TEXT PRIMARY KEY,
		input_folder  TEXT NOT NULL,
		output_folder TEXT NOT NULL,
		started_at    TEXT NOT NULL,
		finished_at   TEXT NOT NULL DEFAULT '',
		relocated     INTEGER NOT NULL DEFAULT 0,
		left_in_place INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		skipped       INTEGER NOT NULL DEFAULT 0,
		error         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS scan_documents (
		id           TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL REFERENCES scan_runs(id),
		source_path  TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		symbology    TEXT NOT NULL DEFAULT '',
		barcode_text TEXT NOT NULL DEFAULT '',
		destination  TEXT NOT NULL DEFAULT '',
		reason       TEXT NOT NULL DEFAULT '',
		duration_ms  INTEGER NOT NULL,
		processed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_documents_processed_at ON scan_documents (processed_at)`,
}

// Config selects and configures the database
type Config struct {
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	MaxOpenConns int
}

// Enabled reports whether a ledger should be opened
func (c Config) Enabled() bool {
	return c.Driver != "" && c.Driver != DriverNone
}

// Entry is one recorded document result
type Entry struct {
	RunID       string             `json:"run_id"`
	Source      string             `json:"source"`
	Outcome     domain.OutcomeKind `json:"outcome"`
	Symbology   string             `json:"symbology,omitempty"`
	Text        string             `json:"text,omitempty"`
	Destination string             `json:"destination,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Duration    time.Duration      `json:"duration"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// Run is one recorded scan
type Run struct {
	ID          string    `json:"id"`
	Input       string    `json:"input_folder"`
	Output      string    `json:"output_folder"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Relocated   int       `json:"relocated"`
	LeftInPlace int       `json:"left_in_place"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
}

// Ledger persists scan history
type Ledger struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured database and creates the schema
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case DriverSQLite:
		driverName, dsn = "sqlite3", cfg.SQLitePath
		if dsn == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		driverName, dsn = "postgres", cfg.PostgresDSN
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer at a time; SQLite serializes anyway.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	l := &Ledger{db: db, driver: cfg.Driver, now: time.Now}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for Postgres
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BeginRun records the start of a scan
func (l *Ledger) BeginRun(ctx context.Context, s domain.ScanSummary) error {
	query := l.rebind(`INSERT INTO scan_runs (id, input_folder, output_folder, started_at) VALUES (?, ?, ?, ?)`)
	if _, err := l.db.ExecContext(ctx, query, s.RunID, s.Input, s.Output, formatTime(s.StartedAt)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordResult stores one document result for runID. processed_at is the
// document's completion time, or now when the result does not carry one.
func (l *Ledger) RecordResult(ctx context.Context, runID string, r domain.DocumentResult) error {
	processedAt := r.FinishedAt
	if processedAt.IsZero() {
		processedAt = l.now()
	}

	query := l.rebind(`
		INSERT INTO scan_documents
			(id, run_id, source_path, outcome, symbology, barcode_text, destination, reason, duration_ms, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := l.db.ExecContext(ctx, query,
		uuid.NewString(),
		runID,
		r.Document.Path,
		string(r.Outcome.Kind),
		r.Decode.Symbology,
		r.Decode.Text,
		r.Outcome.Destination,
		r.Outcome.Reason,
		r.Duration.Milliseconds(),
		formatTime(processedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document result: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a scan and the batch error, if any
func (l *Ledger) FinishRun(ctx context.Context, s domain.ScanSummary, scanErr error) error {
	var errText string
	if scanErr != nil {
		errText = scanErr.Error()
	}

	query := l.rebind(`
		UPDATE scan_runs
		SET finished_at = ?, relocated = ?, left_in_place = ?, failed = ?, skipped = ?, error = ?
		WHERE id = ?`)

	res, err := l.db.ExecContext(ctx, query,
		formatTime(s.StartedAt.Add(s.Duration)),
		s.Relocated, s.LeftInPlace, s.Failed, s.Skipped, errText,
		s.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run: run %s not found", s.RunID)
	}
	return nil
}

// Recent returns the latest document results, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := l.rebind(`
		SELECT run_id, source_path, outcome, symbology, barcode_text, destination, reason, duration_ms, processed_at
		FROM scan_documents
		ORDER BY processed_at DESC, id
		LIMIT ?`)

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query document results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome, processedAt string
		var durationMS int64
		if err := rows.Scan(&e.RunID, &e.Source, &outcome, &e.Symbology, &e.Text,
			&e.Destination, &e.Reason, &durationMS, &processedAt); err != nil {
			return nil, fmt.Errorf("scan document result: %w", err)
		}
		e.Outcome = domain.OutcomeKind(outcome)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if e.ProcessedAt, err = parseTime(processedAt); err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document results: %w", err)
	}
	return entries, nil
}

// Runs returns the latest scan runs, newest first
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := l.rebind(`
		SELECT id, input_folder, output_folder, started_at, finished_at,
			relocated, left_in_place, failed, skipped, error
		FROM scan_runs
		ORDER BY started_at DESC, id
		LIMIT ?`)

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Input, &r.Output, &startedAt, &finishedAt,
			&r.Relocated, &r.LeftInPlace, &r.Failed, &r.Skipped, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finishedAt != "" {
			if r.FinishedAt, err = parseTime(finishedAt); err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
