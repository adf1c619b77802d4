package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func record(id string, status schemas.ResultStatus, attempts int, created time.Time) schemas.SessionRecord {
	r := schemas.Result{
		SessionID:   id,
		Path:        "/proj/calc.py",
		Status:      status,
		Explanation: "explained",
		Findings:    []schemas.Finding{},
		FinishedAt:  created.Add(time.Second),
		StartedAt:   created,
	}
	for i := 1; i <= attempts; i++ {
		r.Attempts = append(r.Attempts, schemas.Attempt{Ordinal: i, Status: schemas.AttemptRejectedByTests})
	}
	return schemas.SessionRecord{
		SessionID: id,
		Path:      "/proj/calc.py",
		Language:  "python",
		Result:    r,
		CreatedAt: created,
	}
}

// -- SQLite --

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "archive.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := record("s-1", schemas.ResultExhausted, 3, created)
	require.NoError(t, s.SaveResult(ctx, rec))

	got, err := s.GetResult(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "python", got.Language)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, schemas.ResultExhausted, got.Result.Status)
	assert.Equal(t, 3, got.Result.AttemptCount())
	assert.Equal(t, "explained", got.Result.Explanation)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	created := time.Now().UTC()

	require.NoError(t, s.SaveResult(ctx, record("s-1", schemas.ResultAborted, 0, created)))
	require.NoError(t, s.SaveResult(ctx, record("s-1", schemas.ResultSuccess, 2, created)))

	rows, err := s.ListResults(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, schemas.ResultSuccess, rows[0].Status)
	assert.Equal(t, 2, rows[0].AttemptCount)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveResult(ctx, record(id, schemas.ResultSuccess, 1, base.Add(time.Duration(i)*time.Hour))))
	}

	rows, err := s.ListResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0].SessionID)
	assert.Equal(t, "mid", rows[1].SessionID)
	assert.True(t, base.Add(2*time.Hour).Equal(rows[0].CreatedAt))

	all, err := s.ListResults(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RejectsRecordWithoutID(t *testing.T) {
	s := openTestSQLite(t)
	assert.Error(t, s.SaveResult(context.Background(), schemas.SessionRecord{}))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.SaveResult(ctx, record("persisted", schemas.ResultSuccess, 1, time.Now())))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetResult(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultSuccess, got.Result.Status)
}

// -- Factory --

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	s, err := New(ctx, config.StoreConfig{Driver: "none"}, logger)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = New(ctx, config.StoreConfig{Driver: "mongo"}, logger)
	assert.Error(t, err)

	_, err = New(ctx, config.StoreConfig{Driver: "sqlite"}, logger)
	assert.Error(t, err, "sqlite needs a path")

	s, err = New(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "a.db")}, logger)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())
}

// -- Postgres --

func newMockPostgres(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)

	mockPool.ExpectExec(flexibleSQLMatcher(pgSchema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	s, err := NewPostgres(context.Background(), mockPool, zaptest.NewLogger(t))
	require.NoError(t, err)
	return mockPool, s
}

func TestPostgresStore_MigrationFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)

	migrateErr := errors.New("permission denied")
	mockPool.ExpectExec(flexibleSQLMatcher(pgSchema)).WillReturnError(migrateErr)

	_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, migrateErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult(t *testing.T) {
	mockPool, s := newMockPostgres(t)
	created := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

	mockPool.ExpectExec(flexibleSQLMatcher(pgUpsert)).
		WithArgs("s-1", "/proj/calc.py", "python", "success", 2, pgxmock.AnyArg(), created, created.Add(time.Second)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveResult(context.Background(), record("s-1", schemas.ResultSuccess, 2, created)))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_SaveResultError(t *testing.T) {
	mockPool, s := newMockPostgres(t)
	dbErr := errors.New("connection reset")

	mockPool.ExpectExec(flexibleSQLMatcher(pgUpsert)).WillReturnError(dbErr)

	err := s.SaveResult(context.Background(), record("s-1", schemas.ResultSuccess, 1, time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetResult(t *testing.T) {
	mockPool, s := newMockPostgres(t)
	created := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	payload := []byte(`{"session_id":"s-1","path":"/proj/calc.py","status":"success","attempts":[{"ordinal":1,"status":"accepted"}]}`)

	mockPool.ExpectQuery(flexibleSQLMatcher(pgSelectOne)).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "path", "language", "result", "created_at"}).
			AddRow("s-1", "/proj/calc.py", "python", payload, created))

	got, err := s.GetResult(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultSuccess, got.Result.Status)
	assert.Equal(t, 1, got.Result.AttemptCount())
	assert.True(t, created.Equal(got.CreatedAt))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_GetResultNotFound(t *testing.T) {
	mockPool, s := newMockPostgres(t)

	mockPool.ExpectQuery(flexibleSQLMatcher(pgSelectOne)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ListResults(t *testing.T) {
	mockPool, s := newMockPostgres(t)
	now := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(flexibleSQLMatcher(pgSelectRecent)).
		WithArgs(DefaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "path", "status", "attempt_count", "created_at"}).
			AddRow("b", "/proj/b.py", "exhausted", 3, now).
			AddRow("a", "/proj/a.py", "success", 1, now.Add(-time.Hour)))

	rows, err := s.ListResults(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].SessionID)
	assert.Equal(t, schemas.ResultExhausted, rows[0].Status)
	assert.Equal(t, 3, rows[0].AttemptCount)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
