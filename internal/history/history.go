// Package history stores one record per loop iteration in SQLite so past
// runs can be inspected from the CLI and the web UI.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Iteration result classifications.
const (
	ResultSuccess     = "success"
	ResultNoProgress  = "no_progress"
	ResultError       = "error"
	ResultRateLimited = "rate_limited"
	ResultCancelled   = "cancelled"
)

// Record is one iteration of one run.
type Record struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	IterationNumber int       `json:"iteration_number"`
	PerformerName   string    `json:"performer_name"`
	PerformerEmoji  string    `json:"performer_emoji"`
	Result          string    `json:"result"`
	TasksBefore     int       `json:"tasks_before"`
	TasksAfter      int       `json:"tasks_after"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	Result    string
	Performer string
	RunID     string
	Limit     int
	Offset    int
}

// Stats summarizes the whole table.
type Stats struct {
	Total           int     `json:"total"`
	SuccessCount    int     `json:"success_count"`
	NoProgressCount int     `json:"no_progress_count"`
	ErrorCount      int     `json:"error_count"`
	AvgDuration     float64 `json:"avg_duration_seconds"`
}

// Store wraps the SQLite connection holding iteration history.
type Store struct {
	conn *sql.DB
	path string
}

// DefaultPath returns ~/.autoloop/history.db, creating the directory if
// needed. AUTOLOOP_DATA_DIR overrides the directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("AUTOLOOP_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".autoloop")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens or creates the history database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS iterations (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id           TEXT NOT NULL DEFAULT '',
    iteration_number INTEGER NOT NULL,
    performer_name   TEXT NOT NULL,
    performer_emoji  TEXT NOT NULL DEFAULT '',
    result           TEXT NOT NULL,
    tasks_before     INTEGER NOT NULL DEFAULT 0,
    tasks_after      INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    started_at       TEXT NOT NULL,
    ended_at         TEXT NOT NULL,
    error_message    TEXT
);
CREATE INDEX IF NOT EXISTS idx_iterations_ended_at ON iterations(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_iterations_result ON iterations(result);
CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id, iteration_number);
`

func (s *Store) migrate() error {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Save inserts an iteration record and returns its ID.
func (s *Store) Save(r *Record) (int64, error) {
	var errMsg any
	if r.ErrorMessage != "" {
		errMsg = r.ErrorMessage
	}
	res, err := s.conn.Exec(
		`INSERT INTO iterations (
			run_id, iteration_number, performer_name, performer_emoji, result,
			tasks_before, tasks_after, duration_seconds,
			started_at, ended_at, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.IterationNumber, r.PerformerName, r.PerformerEmoji, r.Result,
		r.TasksBefore, r.TasksAfter, r.DurationSeconds,
		r.StartedAt.Format(time.RFC3339), r.EndedAt.Format(time.RFC3339), errMsg,
	)
	if err != nil {
		return 0, fmt.Errorf("save iteration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// List returns records matching the filter, newest first, plus the total
// count of matches before pagination.
func (s *Store) List(f Filter) ([]Record, int, error) {
	var where []string
	var params []any
	if f.Result != "" {
		where = append(where, "result = ?")
		params = append(params, f.Result)
	}
	if f.Performer != "" {
		where = append(where, "performer_name = ?")
		params = append(params, f.Performer)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		params = append(params, f.RunID)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM iterations "+whereSQL, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count iterations: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	queryParams := append(params, limit, f.Offset)
	rows, err := s.conn.Query(
		`SELECT id, run_id, iteration_number, performer_name, performer_emoji, result,
			tasks_before, tasks_after, duration_seconds, started_at, ended_at, error_message
		 FROM iterations `+whereSQL+`
		 ORDER BY ended_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		queryParams...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var started, ended string
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.IterationNumber, &r.PerformerName, &r.PerformerEmoji,
			&r.Result, &r.TasksBefore, &r.TasksAfter, &r.DurationSeconds, &started, &ended, &errMsg); err != nil {
			return nil, 0, fmt.Errorf("scan iteration: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.EndedAt, _ = time.Parse(time.RFC3339, ended)
		if errMsg.Valid {
			r.ErrorMessage = errMsg.String
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// Performers returns the distinct performer names seen in history.
func (s *Store) Performers() ([]string, error) {
	rows, err := s.conn.Query("SELECT DISTINCT performer_name FROM iterations ORDER BY performer_name")
	if err != nil {
		return nil, fmt.Errorf("list performers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan performer: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Stats returns summary statistics across all recorded iterations.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	var avg sql.NullFloat64
	err := s.conn.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN result = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'no_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'error' THEN 1 ELSE 0 END), 0),
			AVG(duration_seconds)
		FROM iterations
	`).Scan(&st.Total, &st.SuccessCount, &st.NoProgressCount, &st.ErrorCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	if avg.Valid {
		st.AvgDuration = avg.Float64
	}
	return &st, nil
}
