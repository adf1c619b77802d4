package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/store"
)

func seedArchive(t *testing.T, dir string, recs ...schemas.SessionRecord) string {
	t.Helper()
	p := filepath.Join(dir, "sessions.db")
	s, err := store.OpenSQLite(context.Background(), p, zaptest.NewLogger(t))
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, s.SaveResult(context.Background(), rec))
	}
	require.NoError(t, s.Close())
	return p
}

func record(id, path string, status schemas.ResultStatus, created time.Time) schemas.SessionRecord {
	fixed := "def add(a, b):\n    return a + b\n"
	return schemas.SessionRecord{
		SessionID: id,
		Path:      path,
		Language:  "python",
		CreatedAt: created,
		Result: schemas.Result{
			SessionID:   id,
			Path:        path,
			Status:      status,
			Candidate:   &fixed,
			Explanation: "Changed subtraction to addition.",
			Attempts: []schemas.Attempt{
				{Ordinal: 1, Status: schemas.AttemptAccepted, StartedAt: created, FinishedAt: created.Add(time.Second)},
			},
			StartedAt:  created,
			FinishedAt: created.Add(time.Second),
		},
	}
}

func TestHistoryCmd(t *testing.T) {
	env := newTestEnv(t, "")
	now := time.Now()
	db := seedArchive(t, env.dir,
		record("older-session", "/src/a.py", schemas.ResultExhausted, now.Add(-time.Hour)),
		record("newer-session", "/src/b.py", schemas.ResultSuccess, now),
	)
	t.Setenv("CODEDOC_STORE_DRIVER", "sqlite")
	t.Setenv("CODEDOC_STORE_PATH", db)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "SESSION")
		assert.Contains(t, out, "/src/b.py")
		assert.Less(t, strings.Index(out, "newer-session"), strings.Index(out, "older-session"), "newest first")
	})

	t.Run("list limit", func(t *testing.T) {
		out, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "list", "-n", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "newer-session")
		assert.NotContains(t, out, "older-session")
	})

	t.Run("show json", func(t *testing.T) {
		out, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "show", "newer-session", "-f", "json")
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "success", got["status"])
		assert.Equal(t, "Changed subtraction to addition.", got["explanation"])
	})

	t.Run("show text", func(t *testing.T) {
		out, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "show", "older-session")
		require.NoError(t, err)
		assert.Contains(t, out, "EXHAUSTED")
		assert.Contains(t, out, "No findings.")
	})

	t.Run("show unknown", func(t *testing.T) {
		_, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "show", "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestHistoryCmd_Empty(t *testing.T) {
	env := newTestEnv(t, "")
	t.Setenv("CODEDOC_STORE_DRIVER", "sqlite")
	t.Setenv("CODEDOC_STORE_PATH", filepath.Join(env.dir, "empty.db"))

	out, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions archived yet.")
}

func TestHistoryCmd_Disabled(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := execute(t, NewRootCommand(), "-c", env.configPath, "history", "list")
	assert.ErrorIs(t, err, errArchiveDisabled)
}
