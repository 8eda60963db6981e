// Package store persists run artifacts and the match cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agenthands/powermatch/internal/core/model"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run states.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	sources     TEXT NOT NULL DEFAULT '[]',
	stats       TEXT NOT NULL DEFAULT '{}',
	started_at  TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS plants (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	plant_id INTEGER NOT NULL,
	data     TEXT NOT NULL,
	PRIMARY KEY (run_id, plant_id)
);
CREATE TABLE IF NOT EXISTS pair_tables (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	pair   TEXT NOT NULL,
	data   TEXT NOT NULL,
	PRIMARY KEY (run_id, pair)
);
CREATE TABLE IF NOT EXISTS diagnostics (
	run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
	data   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// Run is the bookkeeping row of one matching run.
type Run struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Sources    []string    `json:"sources"`
	Stats      model.Stats `json:"stats"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records a run as running.
func (s *Store) CreateRun(ctx context.Context, id string, sources []string) error {
	src, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, sources, started_at) VALUES (?, ?, ?, ?)`,
		id, StatusRunning, string(src), now())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the artifacts of a run and marks it finished. A non-nil runErr marks the run failed;
// result may then be nil.
func (s *Store) FinishRun(ctx context.Context, id string, result *model.Result, runErr error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	var stats model.Stats
	if result != nil {
		if result.Diagnostics != nil {
			stats = result.Diagnostics.Stats
			data, err := json.Marshal(result.Diagnostics)
			if err != nil {
				return fmt.Errorf("failed to encode diagnostics: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO diagnostics (run_id, data) VALUES (?, ?)`, id, string(data)); err != nil {
				return fmt.Errorf("failed to save diagnostics: %w", err)
			}
		}
		for _, p := range result.Plants {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to encode plant %d: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO plants (run_id, plant_id, data) VALUES (?, ?, ?)`, id, p.ID, string(data)); err != nil {
				return fmt.Errorf("failed to save plant %d: %w", p.ID, err)
			}
		}
		for _, t := range result.Tables {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to encode match table: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO pair_tables (run_id, pair, data) VALUES (?, ?, ?)`,
				id, model.PairKey(t.SourceA, t.SourceB), string(data)); err != nil {
				return fmt.Errorf("failed to save match table: %w", err)
			}
		}
	}

	st, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, stats = ?, finished_at = ? WHERE id = ?`,
		status, msg, string(st), now(), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		r                Run
		src, st, started string
		finished         sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, error, sources, stats, started_at, finished_at FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Status, &r.Error, &src, &st, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := json.Unmarshal([]byte(src), &r.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	if err := json.Unmarshal([]byte(st), &r.Stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	if r.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return nil, fmt.Errorf("failed to decode start time: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeFormat, finished.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode finish time: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]Run, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Plants returns the plants of a run ordered by plant id.
func (s *Store) Plants(ctx context.Context, runID string) ([]model.Plant, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return queryJSON[model.Plant](ctx, s.db, `SELECT data FROM plants WHERE run_id = ? ORDER BY plant_id`, runID)
}

// Tables returns the pairwise match tables of a run ordered by pair label.
func (s *Store) Tables(ctx context.Context, runID string) ([]model.PairwiseMatchTable, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return queryJSON[model.PairwiseMatchTable](ctx, s.db, `SELECT data FROM pair_tables WHERE run_id = ? ORDER BY pair`, runID)
}

// Diagnostics returns the diagnostics of a finished run.
func (s *Store) Diagnostics(ctx context.Context, runID string) (*model.Diagnostics, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	out, err := queryJSON[*model.Diagnostics](ctx, s.db, `SELECT data FROM diagnostics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return model.NewDiagnostics(), nil
	}
	return out[0], nil
}

// DeleteRun removes a run and its artifacts.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func queryJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
