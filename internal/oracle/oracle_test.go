package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/observability"
)

// -- Test Helpers --

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, dir, command string) (schemas.TestVerdict, error) {
	args := m.Called(ctx, dir, command)
	return args.Get(0).(schemas.TestVerdict), args.Error(1)
}

func (m *MockRunner) Close() error {
	return m.Called().Error(0)
}

func testOracleConfig(command string) config.OracleConfig {
	return config.OracleConfig{
		Command:        command,
		Timeout:        10 * time.Second,
		Runner:         "local",
		Workspace:      StrategyCopy,
		IgnoreDirs:     []string{".git"},
		MaxOutputBytes: 64 * 1024,
	}
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/calc.py": "def add(a, b):\n    return a - b\n",
	})
	return root
}

// -- Tests --

func TestOracle_PassAndFail(t *testing.T) {
	root := newProject(t)
	// The command inspects the file in the sandbox, so the verdict depends on
	// the candidate content.
	o, err := New(testOracleConfig("grep -q 'a + b' src/calc.py"), zaptest.NewLogger(t))
	require.NoError(t, err)

	tree := Tree{Root: root, Path: "src/calc.py", Language: "python"}

	t.Run("passing candidate", func(t *testing.T) {
		tree := tree
		tree.Content = "def add(a, b):\n    return a + b\n"
		v, err := o.Run(context.Background(), tree)
		require.NoError(t, err)
		assert.True(t, v.Pass)
		assert.Equal(t, 0, v.ExitCode)
		assert.False(t, v.TimedOut)
	})

	t.Run("failing candidate", func(t *testing.T) {
		tree := tree
		tree.Content = "def add(a, b):\n    return a * b\n"
		v, err := o.Run(context.Background(), tree)
		require.NoError(t, err)
		assert.False(t, v.Pass)
		assert.Equal(t, 1, v.ExitCode)
	})

	live, err := os.ReadFile(filepath.Join(root, "src/calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a - b\n", string(live), "the live tree is never modified")
}

func TestOracle_CapturesOutput(t *testing.T) {
	root := newProject(t)
	o, err := New(testOracleConfig("echo out; echo err >&2; exit 3"), zaptest.NewLogger(t))
	require.NoError(t, err)

	v, err := o.Run(context.Background(), Tree{Root: root, Path: "src/calc.py", Content: "x"})
	require.NoError(t, err)
	assert.False(t, v.Pass)
	assert.Equal(t, 3, v.ExitCode)
	assert.Equal(t, "out\n", v.Stdout)
	assert.Equal(t, "err\n", v.Stderr)
	assert.Equal(t, "out\n\nerr\n", v.Output())
}

func TestOracle_RemovesWorkspace(t *testing.T) {
	root := newProject(t)
	parent := t.TempDir()
	cfg := testOracleConfig("pwd; exit 1")
	cfg.TempDir = parent
	o, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	v, err := o.Run(context.Background(), Tree{Root: root, Path: "src/calc.py", Content: "x"})
	require.NoError(t, err)
	ws := strings.TrimSpace(v.Stdout)
	require.NotEmpty(t, ws)
	assert.NoDirExists(t, ws)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOracle_KeepWorkspaceOnFailure(t *testing.T) {
	root := newProject(t)
	cfg := testOracleConfig("pwd; exit 1")
	cfg.TempDir = t.TempDir()
	cfg.KeepWorkspaceOnFailure = true
	o, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	v, err := o.Run(context.Background(), Tree{Root: root, Path: "src/calc.py", Content: "kept"})
	require.NoError(t, err)
	ws := strings.TrimSpace(v.Stdout)
	assert.DirExists(t, ws)

	got, err := os.ReadFile(filepath.Join(ws, "src/calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
}

func TestOracle_TimeoutIsAVerdict(t *testing.T) {
	root := newProject(t)
	cfg := testOracleConfig("sleep 5 & sleep 5")
	cfg.Timeout = 200 * time.Millisecond
	o, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	start := time.Now()
	v, err := o.Run(context.Background(), Tree{Root: root, Path: "src/calc.py", Content: "x"})
	require.NoError(t, err)
	assert.True(t, v.TimedOut)
	assert.False(t, v.Pass)
	assert.Less(t, time.Since(start), 4*time.Second, "the whole process group is killed")
}

func TestOracle_Cancellation(t *testing.T) {
	root := newProject(t)
	o, err := New(testOracleConfig("sleep 5"), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err = o.Run(ctx, Tree{Root: root, Path: "src/calc.py", Content: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOracle_Contract(t *testing.T) {
	root := newProject(t)
	logger := zaptest.NewLogger(t)

	t.Run("no command for language", func(t *testing.T) {
		o, err := New(testOracleConfig(""), logger)
		require.NoError(t, err)
		_, err = o.Run(context.Background(), Tree{Root: root, Path: "a.rb", Language: "ruby", Content: "x"})
		assert.ErrorIs(t, err, ErrNoCommand)
	})

	t.Run("path outside root", func(t *testing.T) {
		o, err := New(testOracleConfig("true"), logger)
		require.NoError(t, err)
		_, err = o.Run(context.Background(), Tree{Root: root, Path: "../escape.py", Content: "x"})
		assert.ErrorIs(t, err, ErrOutsideRoot)
	})

	t.Run("absolute path inside root", func(t *testing.T) {
		o, err := New(testOracleConfig("test -f src/calc.py"), logger)
		require.NoError(t, err)
		v, err := o.Run(context.Background(), Tree{Root: root, Path: filepath.Join(root, "src/calc.py"), Content: "x"})
		require.NoError(t, err)
		assert.True(t, v.Pass)
	})

	t.Run("unknown runner", func(t *testing.T) {
		cfg := testOracleConfig("true")
		cfg.Runner = "vm"
		_, err := New(cfg, logger)
		assert.ErrorContains(t, err, "unknown runner")
	})
}

func TestOracle_InjectedRunner(t *testing.T) {
	root := newProject(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.AnythingOfType("string"), "go test ./...").
		Return(schemas.TestVerdict{Pass: true, Duration: time.Second}, nil).Once()
	runner.On("Run", mock.Anything, mock.AnythingOfType("string"), "go test ./...").
		Return(schemas.TestVerdict{}, errors.New("daemon gone")).Once()
	runner.On("Close").Return(nil)

	o, err := New(testOracleConfig(""), zaptest.NewLogger(t), WithRunner(runner), WithMetrics(metrics))
	require.NoError(t, err)

	tree := Tree{Root: root, Path: "main.go", Language: "go", Content: "package main\n"}
	v, err := o.Run(context.Background(), tree)
	require.NoError(t, err)
	assert.True(t, v.Pass)

	_, err = o.Run(context.Background(), tree)
	assert.ErrorContains(t, err, "daemon gone")

	require.NoError(t, o.Close())
	runner.AssertExpectations(t)

	// One series each for the passing run and the runner error.
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.OracleDuration))
}

func TestDefaultCommand(t *testing.T) {
	assert.Equal(t, "python3 -m pytest -q", DefaultCommand("python"))
	assert.Equal(t, "go test ./...", DefaultCommand("Go"))
	assert.Equal(t, "npm test --silent", DefaultCommand("js"))
	assert.Empty(t, DefaultCommand("cobol"))
}
