// Package store persists run records so the latest result survives restarts.
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

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"narrativeradar/internal/radar"
)

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("store: run not found")

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID             string    `json:"id"`
	GeneratedAt    time.Time `json:"generated_at"`
	WindowFrom     time.Time `json:"window_from"`
	WindowTo       time.Time `json:"window_to"`
	NarrativeCount int       `json:"narrative_count"`
	TopScore       float64   `json:"top_score"`
}

// SQLiteStore keeps every run as a JSON payload plus a few indexed columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		generated_at    TEXT NOT NULL,
		window_from     TEXT NOT NULL,
		window_to       TEXT NOT NULL,
		narrative_count INTEGER NOT NULL,
		top_score       REAL NOT NULL,
		payload         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_generated ON runs(generated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save inserts or replaces run.
func (s *SQLiteStore) Save(ctx context.Context, run *radar.RunRecord) error {
	if run == nil || run.ID == "" {
		return errors.New("store: run must have an id")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("store: encode run: %w", err)
	}

	query, args, err := sq.Insert("runs").
		Options("OR REPLACE").
		Columns("id", "generated_at", "window_from", "window_to", "narrative_count", "top_score", "payload").
		Values(
			run.ID,
			run.GeneratedAt.UTC().Format(timeLayout),
			run.WindowFrom.UTC().Format(timeLayout),
			run.WindowTo.UTC().Format(timeLayout),
			len(run.Narratives),
			run.TopScore(),
			string(payload),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: save run %s: %w", run.ID, err)
	}
	return nil
}

// Latest returns the most recently generated run.
func (s *SQLiteStore) Latest(ctx context.Context) (*radar.RunRecord, error) {
	return s.loadOne(ctx, sq.Select("payload").From("runs").OrderBy("generated_at DESC", "rowid DESC").Limit(1))
}

// Get returns the run with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*radar.RunRecord, error) {
	return s.loadOne(ctx, sq.Select("payload").From("runs").Where(sq.Eq{"id": id}))
}

func (s *SQLiteStore) loadOne(ctx context.Context, b sq.SelectBuilder) (*radar.RunRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build select: %w", err)
	}
	var payload string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load run: %w", err)
	}
	var run radar.RunRecord
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("store: decode run: %w", err)
	}
	return &run, nil
}

// List returns up to limit runs, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := sq.Select("id", "generated_at", "window_from", "window_to", "narrative_count", "top_score").
		From("runs").
		OrderBy("generated_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	out := []RunSummary{}
	for rows.Next() {
		var (
			r                   RunSummary
			generated, from, to string
		)
		if err := rows.Scan(&r.ID, &generated, &from, &to, &r.NarrativeCount, &r.TopScore); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.GeneratedAt, _ = time.Parse(timeLayout, generated)
		r.WindowFrom, _ = time.Parse(timeLayout, from)
		r.WindowTo, _ = time.Parse(timeLayout, to)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows iteration: %w", err)
	}
	return out, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, errors.New("store: keep must be positive")
	}
	query, args, err := sq.Delete("runs").
		Where(sq.Expr("id NOT IN (SELECT id FROM runs ORDER BY generated_at DESC, rowid DESC LIMIT ?)", keep)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build prune: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
