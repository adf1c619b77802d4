package oracle

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestSandbox_CopyStrategy(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/mod.py":                "x = 1\n",
		"tests/test_mod.py":         "def test(): pass\n",
		"node_modules/dep/index.js": "module.exports = 1\n",
		".git/HEAD":                 "ref: refs/heads/main\n",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "tests/test_mod.py"), 0o755))

	sb := NewSandbox(StrategyCopy, t.TempDir(), []string{".git", "node_modules"}, zaptest.NewLogger(t))
	ws, cleanup, err := sb.Prepare(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, cleanup)

	got, err := os.ReadFile(filepath.Join(ws, "pkg/mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(got))

	info, err := os.Stat(filepath.Join(ws, "tests/test_mod.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), "file modes are preserved")

	assert.NoDirExists(t, filepath.Join(ws, "node_modules"))
	assert.NoDirExists(t, filepath.Join(ws, ".git"))

	// Writes in the workspace never reach the live tree.
	require.NoError(t, os.WriteFile(filepath.Join(ws, "pkg/mod.py"), []byte("x = 2\n"), 0o644))
	live, err := os.ReadFile(filepath.Join(root, "pkg/mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(live))

	cleanup()
	assert.NoDirExists(t, ws)
}

func TestSandbox_CopiesSymlinks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real.txt": "data"})
	require.NoError(t, os.Symlink("real.txt", filepath.Join(root, "link.txt")))

	sb := NewSandbox(StrategyCopy, "", nil, zaptest.NewLogger(t))
	ws, cleanup, err := sb.Prepare(context.Background(), root)
	require.NoError(t, err)
	defer cleanup()

	target, err := os.Readlink(filepath.Join(ws, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestSandbox_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("missing root", func(t *testing.T) {
		sb := NewSandbox(StrategyCopy, "", nil, logger)
		_, _, err := sb.Prepare(context.Background(), filepath.Join(t.TempDir(), "missing"))
		assert.ErrorContains(t, err, "project root is not accessible")
	})

	t.Run("root is a file", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(f, nil, 0o644))
		sb := NewSandbox(StrategyCopy, "", nil, logger)
		_, _, err := sb.Prepare(context.Background(), f)
		assert.ErrorContains(t, err, "is not a directory")
	})

	t.Run("cancelled copy removes the temp dir", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{"a.txt": "a"})
		parent := t.TempDir()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sb := NewSandbox(StrategyCopy, parent, nil, logger)
		_, _, err := sb.Prepare(ctx, root)
		assert.ErrorIs(t, err, context.Canceled)

		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSandbox_GitStrategy(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available for the local file transport")
	}

	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	writeTree(t, root, map[string]string{"main.go": "package main\n"})

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	// Untracked files are not part of a clone.
	writeTree(t, root, map[string]string{"scratch.txt": "local only"})

	sb := NewSandbox(StrategyGit, t.TempDir(), nil, zaptest.NewLogger(t))
	ws, cleanup, err := sb.Prepare(context.Background(), root)
	require.NoError(t, err)
	defer cleanup()

	assert.FileExists(t, filepath.Join(ws, "main.go"))
	assert.NoFileExists(t, filepath.Join(ws, "scratch.txt"))
}
