package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repair_sessions (
    session_id    TEXT PRIMARY KEY,
    path          TEXT NOT NULL,
    language      TEXT NOT NULL,
    status        TEXT NOT NULL,
    attempt_count INTEGER NOT NULL,
    result        BLOB NOT NULL,
    created_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS repair_sessions_created_at_idx ON repair_sessions (created_at DESC);
`

const (
	sqliteUpsert = `
        INSERT INTO repair_sessions (session_id, path, language, status, attempt_count, result, created_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (session_id) DO UPDATE SET
            status = excluded.status,
            attempt_count = excluded.attempt_count,
            result = excluded.result,
            finished_at = excluded.finished_at;
    `
	sqliteSelectOne = `
        SELECT session_id, path, language, result, created_at
        FROM repair_sessions
        WHERE session_id = ?;
    `
	sqliteSelectRecent = `
        SELECT session_id, path, status, attempt_count, created_at
        FROM repair_sessions
        ORDER BY created_at DESC
        LIMIT ?;
    `
)

// SQLiteStore archives sessions in a local SQLite file. Timestamps are
// stored as Unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens or creates the archive at path. ":memory:" gives a
// private in-memory archive.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer at a time; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return &SQLiteStore{db: db, log: logger.Named("store")}, nil
}

// SaveResult inserts or replaces the archived record for rec.SessionID.
func (s *SQLiteStore) SaveResult(ctx context.Context, rec schemas.SessionRecord) error {
	r, err := toRow(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert,
		r.SessionID, r.Path, r.Language, r.Status, r.AttemptCount, r.Result,
		r.CreatedAt.UnixNano(), r.FinishedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", r.SessionID, err)
	}
	s.log.Debug("Session archived.", zap.String("session_id", r.SessionID), zap.String("status", r.Status))
	return nil
}

// GetResult loads one archived session.
func (s *SQLiteStore) GetResult(ctx context.Context, sessionID string) (*schemas.SessionRecord, error) {
	var (
		r       row
		created int64
	)
	err := s.db.QueryRowContext(ctx, sqliteSelectOne, sessionID).Scan(&r.SessionID, &r.Path, &r.Language, &r.Result, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}
	r.CreatedAt = time.Unix(0, created)
	return fromRow(r)
}

// ListResults returns the most recent sessions, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectRecent, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []schemas.SessionSummary
	for rows.Next() {
		var (
			sum     schemas.SessionSummary
			status  string
			created int64
		)
		if err := rows.Scan(&sum.SessionID, &sum.Path, &status, &sum.AttemptCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.Status = schemas.ResultStatus(status)
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
