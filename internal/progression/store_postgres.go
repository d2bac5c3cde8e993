package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const postgresSchema = `
CREATE TABLE IF NOT EXISTS level_completions (
	player_id    TEXT        NOT NULL,
	level_id     TEXT        NOT NULL,
	best_score   INTEGER     NOT NULL,
	attempts     INTEGER     NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (player_id, level_id)
)`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the completions table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Records(ctx context.Context, playerID string) ([]Record, error) {
	if playerID == "" {
		return nil, ErrPlayerRequired
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT level_id, best_score, attempts, completed_at
		 FROM level_completions
		 WHERE player_id = $1
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
		if err := rows.Scan(&r.LevelID, &r.BestScore, &r.Attempts, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Complete(ctx context.Context, playerID string, rec Record) error {
	if playerID == "" {
		return ErrPlayerRequired
	}
	if rec.LevelID == "" {
		return fmt.Errorf("level id is required")
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO level_completions (player_id, level_id, best_score, attempts, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (player_id, level_id) DO UPDATE SET
		   attempts = CASE WHEN EXCLUDED.best_score > level_completions.best_score
		                   THEN EXCLUDED.attempts ELSE level_completions.attempts END,
		   best_score = GREATEST(level_completions.best_score, EXCLUDED.best_score)`,
		playerID,
		rec.LevelID,
		rec.BestScore,
		rec.Attempts,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, playerID string) error {
	if playerID == "" {
		return ErrPlayerRequired
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM level_completions WHERE player_id = $1`, playerID); err != nil {
		return fmt.Errorf("reset completions: %w", err)
	}
	return nil
}
