package progression

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed Store for single-machine deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// its schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite away from SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS level_completions (
		player_id    TEXT    NOT NULL,
		level_id     TEXT    NOT NULL,
		best_score   INTEGER NOT NULL,
		attempts     INTEGER NOT NULL,
		completed_at TEXT    NOT NULL,
		PRIMARY KEY (player_id, level_id)
	)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Records(ctx context.Context, playerID string) ([]Record, error) {
	if playerID == "" {
		return nil, ErrPlayerRequired
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT level_id, best_score, attempts, completed_at
		 FROM level_completions
		 WHERE player_id = ?
		 ORDER BY level_id ASC`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var completedAt string
		if err := rows.Scan(&r.LevelID, &r.BestScore, &r.Attempts, &completedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		if r.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at of %s: %w", r.LevelID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Complete(ctx context.Context, playerID string, rec Record) error {
	if playerID == "" {
		return ErrPlayerRequired
	}
	if rec.LevelID == "" {
		return fmt.Errorf("level id is required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO level_completions (player_id, level_id, best_score, attempts, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (player_id, level_id) DO UPDATE SET
		   attempts = CASE WHEN excluded.best_score > level_completions.best_score
		                   THEN excluded.attempts ELSE level_completions.attempts END,
		   best_score = MAX(level_completions.best_score, excluded.best_score)`,
		playerID,
		rec.LevelID,
		rec.BestScore,
		rec.Attempts,
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, playerID string) error {
	if playerID == "" {
		return ErrPlayerRequired
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM level_completions WHERE player_id = ?`, playerID); err != nil {
		return fmt.Errorf("reset completions: %w", err)
	}
	return nil
}
