package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS repair_sessions (
    session_id    TEXT PRIMARY KEY,
    path          TEXT NOT NULL,
    language      TEXT NOT NULL,
    status        TEXT NOT NULL,
    attempt_count INTEGER NOT NULL,
    result        JSONB NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS repair_sessions_created_at_idx ON repair_sessions (created_at DESC);
`

const (
	pgUpsert = `
        INSERT INTO repair_sessions (session_id, path, language, status, attempt_count, result, created_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (session_id) DO UPDATE SET
            status = EXCLUDED.status,
            attempt_count = EXCLUDED.attempt_count,
            result = EXCLUDED.result,
            finished_at = EXCLUDED.finished_at;
    `
	pgSelectOne = `
        SELECT session_id, path, language, result, created_at
        FROM repair_sessions
        WHERE session_id = $1;
    `
	pgSelectRecent = `
        SELECT session_id, path, status, attempt_count, created_at
        FROM repair_sessions
        ORDER BY created_at DESC
        LIMIT $1;
    `
)

// PostgresStore archives sessions in PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres verifies the connection and creates the archive table if needed.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveResult inserts or replaces the archived record for rec.SessionID.
func (s *PostgresStore) SaveResult(ctx context.Context, rec schemas.SessionRecord) error {
	r, err := toRow(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, pgUpsert,
		r.SessionID, r.Path, r.Language, r.Status, r.AttemptCount, r.Result, r.CreatedAt, r.FinishedAt,
	); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", r.SessionID, err)
	}
	s.log.Debug("Session archived.", zap.String("session_id", r.SessionID), zap.String("status", r.Status))
	return nil
}

// GetResult loads one archived session.
func (s *PostgresStore) GetResult(ctx context.Context, sessionID string) (*schemas.SessionRecord, error) {
	var r row
	err := s.pool.QueryRow(ctx, pgSelectOne, sessionID).Scan(&r.SessionID, &r.Path, &r.Language, &r.Result, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	return fromRow(r)
}

// ListResults returns the most recent sessions, newest first.
func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	rows, err := s.pool.Query(ctx, pgSelectRecent, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []schemas.SessionSummary
	for rows.Next() {
		var (
			sum    schemas.SessionSummary
			status string
		)
		if err := rows.Scan(&sum.SessionID, &sum.Path, &status, &sum.AttemptCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.Status = schemas.ResultStatus(status)
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
