package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/espisync/pkg/models"
	_ "modernc.org/sqlite"
)

// Run statuses recorded in the runs table
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunFailed  = "failed"
)

// DB wraps the archive database connection
type DB struct {
	conn *sql.DB
}

// Run is one recorded sync run
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Parsed     int
	Written    int
	Error      string
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time keeps sqlite from returning SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		duration INTEGER NOT NULL,
		kwh REAL NOT NULL,
		category TEXT NOT NULL,
		run_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(timestamp, category)
	);
	CREATE INDEX IF NOT EXISTS idx_readings_category_timestamp ON readings(category, timestamp);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		parsed INTEGER DEFAULT 0,
		written INTEGER DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Archive returns a sink that stores readings tagged with runID
func (db *DB) Archive(runID string) *Archive {
	return &Archive{db: db, runID: runID}
}

// Archive writes readings into the archive for one run
type Archive struct {
	db    *DB
	runID string
}

// Name identifies the sink in logs and errors
func (a *Archive) Name() string {
	return "archive"
}

// WriteReadings inserts readings, ignoring ones already archived.
// All readings are inserted in one transaction, so on failure none are.
func (a *Archive) WriteReadings(ctx context.Context, readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := a.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO readings (timestamp, start_time, duration, kwh, category, run_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	for _, r := range readings {
		startTime := r.Time().Format(time.RFC3339)
		if _, err := stmt.ExecContext(ctx, r.Timestamp, startTime, r.Duration, r.Value, r.Category, a.runID, createdAt); err != nil {
			return 0, fmt.Errorf("inserting reading at %s: %w", startTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}
	return len(readings), nil
}

// ListReadings retrieves archived readings for a category, newest first.
// A limit of 0 returns everything.
func (db *DB) ListReadings(ctx context.Context, category string, limit int) ([]models.Reading, error) {
	query := `
	SELECT timestamp, duration, kwh, category
	FROM readings
	WHERE category = ?
	ORDER BY timestamp DESC
	`
	args := []any{category}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []models.Reading
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.Timestamp, &r.Duration, &r.Value, &r.Category); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// CountReadings returns the number of archived readings for a category
func (db *DB) CountReadings(ctx context.Context, category string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE category = ?`, category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}

// StartRun records the start of a sync run
func (db *DB) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, startedAt.UTC().Format(time.RFC3339), RunRunning,
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a sync run. runErr may be nil.
func (db *DB) FinishRun(ctx context.Context, id string, finishedAt time.Time, parsed, written int, runErr error) error {
	status := RunOK
	var errText sql.NullString
	if runErr != nil {
		status = RunFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, parsed = ?, written = ?, error = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), status, parsed, written, errText, id,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording run finish: unknown run %s", id)
	}
	return nil
}

// ListRuns retrieves recorded runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, started_at, finished_at, status, parsed, written, error
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var run Run
		var startedStr string
		var finishedStr, errText sql.NullString

		if err := rows.Scan(&run.ID, &startedStr, &finishedStr, &run.Status, &run.Parsed, &run.Written, &errText); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		run.StartedAt, err = time.Parse(time.RFC3339, startedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finishedStr.Valid && finishedStr.String != "" {
			run.FinishedAt, err = time.Parse(time.RFC3339, finishedStr.String)
			if err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
		}
		run.Error = errText.String

		results = append(results, run)
	}

	return results, rows.Err()
}
