// Package store archives finished repair sessions. SQLite is the default
// backend; Postgres serves shared deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// ErrNotFound is returned when no archived session has the requested ID.
var ErrNotFound = errors.New("session not found in archive")

// DefaultListLimit caps ListResults when the caller passes a non-positive limit.
const DefaultListLimit = 20

// New opens the archive selected by cfg. The "none" driver returns a nil
// store and no error.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.SessionStore, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// row is the column layout shared by both backends.
type row struct {
	SessionID    string
	Path         string
	Language     string
	Status       string
	AttemptCount int
	Result       []byte
	CreatedAt    time.Time
	FinishedAt   time.Time
}

func toRow(rec schemas.SessionRecord) (row, error) {
	if rec.SessionID == "" {
		return row{}, errors.New("session record has no id")
	}
	data, err := json.Marshal(rec.Result)
	if err != nil {
		return row{}, fmt.Errorf("failed to encode result: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return row{
		SessionID:    rec.SessionID,
		Path:         rec.Path,
		Language:     rec.Language,
		Status:       string(rec.Result.Status),
		AttemptCount: rec.Result.AttemptCount(),
		Result:       data,
		CreatedAt:    created.UTC(),
		FinishedAt:   rec.Result.FinishedAt.UTC(),
	}, nil
}

func fromRow(r row) (*schemas.SessionRecord, error) {
	rec := &schemas.SessionRecord{
		SessionID: r.SessionID,
		Path:      r.Path,
		Language:  r.Language,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Result, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to decode archived result %s: %w", r.SessionID, err)
	}
	return rec, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
