package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"klinearchive/internal/domain"
	"klinearchive/internal/ports"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Journal implements ports.Journal on SQLite or PostgreSQL.
type Journal struct {
	db     *sql.DB
	driver string
	logger ports.Logger
}

// Config holds configuration for the journal.
type Config struct {
	Driver string // sqlite3 (default) or postgres
	DSN    string // file path for sqlite3, connection URL for postgres
	Logger ports.Logger
}

// NewJournal opens the database and creates the journal tables if they don't exist.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for fetch journal")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dbPath := cfg.DSN
		if dbPath == "" {
			dbPath = "./data/journal.db" // Default path
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory '%s': %w", filepath.Dir(dbPath), err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres journal requires a DSN: %w", ports.ErrConfigurationError)
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported journal driver %q: %w", driver, ports.ErrConfigurationError)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w: %w", driver, ports.ErrJournalFailed, err)
	}
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping %s journal: %w: %w", driver, ports.ErrJournalFailed, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite serializes writers anyway
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, driver: driver, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	cfg.Logger.Debug(context.Background(), "Fetch journal ready", map[string]interface{}{"driver": driver})

	return j, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fetched_days (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	day TEXT NOT NULL,
	records INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	UNIQUE (ticker, day)
);

CREATE TABLE IF NOT EXISTS fetch_failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	day TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	page INTEGER NOT NULL,
	error TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_failures_ticker_day ON fetch_failures (ticker, day);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fetched_days (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	day TEXT NOT NULL,
	records INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	UNIQUE (ticker, day)
);

CREATE TABLE IF NOT EXISTS fetch_failures (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	day TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	page INTEGER NOT NULL,
	error TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_failures_ticker_day ON fetch_failures (ticker, day);
`

// initializeSchema creates tables if they don't exist.
func (j *Journal) initializeSchema(ctx context.Context) error {
	schema := sqliteSchema
	if j.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (j *Journal) rebind(query string) string {
	if j.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// RecordDay stores or replaces the entry for rec.Ticker/rec.Day.
func (j *Journal) RecordDay(ctx context.Context, rec *ports.DayRecord) error {
	const query = `
	INSERT INTO fetched_days (run_id, ticker, day, records, bytes, sha256, attempts, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ticker, day) DO UPDATE SET
		run_id = excluded.run_id, records = excluded.records, bytes = excluded.bytes,
		sha256 = excluded.sha256, attempts = excluded.attempts, fetched_at = excluded.fetched_at`

	_, err := j.db.ExecContext(ctx, j.rebind(query),
		rec.RunID, rec.Ticker, rec.Day.String(), rec.Records, rec.Bytes, rec.SHA256, rec.Attempts, rec.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record day %s/%s: %w: %w", rec.Ticker, rec.Day, ports.ErrJournalFailed, err)
	}
	j.logger.Debug(ctx, "Journal day recorded", map[string]interface{}{"ticker": rec.Ticker, "day": rec.Day.String()})
	return nil
}

// RecordFailure stores a failed attempt.
func (j *Journal) RecordFailure(ctx context.Context, rec *ports.FailureRecord) error {
	const query = `
	INSERT INTO fetch_failures (run_id, ticker, day, attempt, page, error, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, j.rebind(query),
		rec.RunID, rec.Ticker, rec.Day.String(), rec.Attempt, rec.Page, rec.Error, rec.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record failure for %s/%s: %w: %w", rec.Ticker, rec.Day, ports.ErrJournalFailed, err)
	}
	return nil
}

// FindDays retrieves the most recent completed days for ticker, newest first.
// A limit of zero or less returns every entry.
func (j *Journal) FindDays(ctx context.Context, ticker string, limit int) ([]*ports.DayRecord, error) {
	query := `
	SELECT run_id, ticker, day, records, bytes, sha256, attempts, fetched_at
	FROM fetched_days
	WHERE ticker = ? ORDER BY day DESC`
	args := []interface{}{ticker}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetched days for %s: %w: %w", ticker, ports.ErrJournalFailed, err)
	}
	defer rows.Close()

	recs := make([]*ports.DayRecord, 0)
	for rows.Next() {
		rec, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fetched day: %w", err)
		}
		recs = append(recs, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetched day rows: %w", err)
	}
	return recs, nil
}

// CountFailures counts failed attempts recorded for ticker/day.
func (j *Journal) CountFailures(ctx context.Context, ticker string, day domain.Day) (int, error) {
	const query = `SELECT COUNT(*) FROM fetch_failures WHERE ticker = ? AND day = ?`
	var count int
	if err := j.db.QueryRowContext(ctx, j.rebind(query), ticker, day.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failures for %s/%s: %w: %w", ticker, day, ports.ErrJournalFailed, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDay(s scanner) (*ports.DayRecord, error) {
	rec := &ports.DayRecord{}
	var day string
	err := s.Scan(&rec.RunID, &rec.Ticker, &day, &rec.Records, &rec.Bytes, &rec.SHA256, &rec.Attempts, &rec.FetchedAt)
	if err != nil {
		return nil, err
	}
	rec.Day, err = domain.ParseDay(day)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
