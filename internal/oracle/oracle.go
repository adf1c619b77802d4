// Package oracle decides whether a candidate is acceptable by running the
// project's test command against a sandboxed copy of the tree.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/observability"
)

var (
	// ErrNoCommand is returned when no test command is configured and the
	// language has no default.
	ErrNoCommand = errors.New("no test command configured")
	// ErrOutsideRoot is returned when the candidate path escapes the project root.
	ErrOutsideRoot = errors.New("path is outside the project root")
)

// Runner executes a shell command in a directory and reports the outcome.
type Runner interface {
	Run(ctx context.Context, dir, command string) (schemas.TestVerdict, error)
	Close() error
}

// Tree is the working tree under test: the project root with one file
// replaced by candidate content.
type Tree struct {
	Root     string
	Path     string
	Language string
	Content  string
}

// DefaultCommand returns the conventional test command for a language, or
// "" when there is none.
func DefaultCommand(language string) string {
	switch strings.ToLower(language) {
	case "python", "py":
		return "python3 -m pytest -q"
	case "go", "golang":
		return "go test ./..."
	case "javascript", "js":
		return "npm test --silent"
	default:
		return ""
	}
}

// Oracle runs the test command for a candidate inside a fresh sandbox. It is
// safe for concurrent use; every call gets its own workspace.
type Oracle struct {
	logger     *zap.Logger
	cfg        config.OracleConfig
	sandbox    *Sandbox
	runner     Runner
	metrics    *observability.Metrics
	keepOnFail bool
}

// Option is a function that configures an Oracle.
type Option func(*Oracle)

// WithRunner replaces the runner selected by configuration.
func WithRunner(r Runner) Option {
	return func(o *Oracle) {
		o.runner = r
	}
}

// WithMetrics records test run durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Oracle) {
		o.metrics = m
	}
}

// New builds an Oracle from configuration. The runner is local unless
// cfg.Runner is "docker" or a runner is injected with WithRunner.
func New(cfg config.OracleConfig, logger *zap.Logger, opts ...Option) (*Oracle, error) {
	o := &Oracle{
		logger:     logger.Named("oracle"),
		cfg:        cfg,
		sandbox:    NewSandbox(cfg.Workspace, cfg.TempDir, cfg.IgnoreDirs, logger),
		keepOnFail: cfg.KeepWorkspaceOnFailure,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner != nil {
		return o, nil
	}

	switch cfg.Runner {
	case "docker":
		r, err := NewDockerRunner(cfg.Docker, cfg.Env, cfg.MaxOutputBytes, logger)
		if err != nil {
			return nil, err
		}
		o.runner = r
	case "", "local":
		o.runner = NewLocalRunner(cfg.Env, cfg.MaxOutputBytes, logger)
	default:
		return nil, fmt.Errorf("unknown runner %q", cfg.Runner)
	}
	return o, nil
}

// Run copies tree.Root into a sandbox, writes tree.Content over tree.Path,
// and runs the test command with the configured timeout. The sandbox is
// removed before Run returns. A timeout is a failing verdict, not an error.
func (o *Oracle) Run(ctx context.Context, tree Tree) (schemas.TestVerdict, error) {
	command := o.cfg.Command
	if command == "" {
		command = DefaultCommand(tree.Language)
	}
	if command == "" {
		return schemas.TestVerdict{}, fmt.Errorf("%w for language %q", ErrNoCommand, tree.Language)
	}
	root, err := filepath.Abs(tree.Root)
	if err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("invalid project root: %w", err)
	}
	rel, err := relativeTo(root, tree.Path)
	if err != nil {
		return schemas.TestVerdict{}, err
	}

	workspace, cleanup, err := o.sandbox.Prepare(ctx, root)
	if err != nil {
		return schemas.TestVerdict{}, err
	}
	keep := false
	defer func() {
		if keep {
			o.logger.Info("Keeping failed workspace for inspection.", zap.String("dir", workspace))
			return
		}
		cleanup()
	}()

	target := filepath.Join(workspace, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("failed to create directory for candidate: %w", err)
	}
	if err := os.WriteFile(target, []byte(tree.Content), 0o644); err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("failed to write candidate to workspace: %w", err)
	}

	runCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	o.logger.Debug("Running test command.", zap.String("command", command), zap.String("file", rel))
	start := time.Now()
	verdict, err := o.runner.Run(runCtx, workspace, command)
	if err != nil {
		o.metrics.ObserveOracle("error", time.Since(start))
		return schemas.TestVerdict{}, err
	}

	o.metrics.ObserveOracle(outcome(verdict), verdict.Duration)
	o.logger.Info("Test run finished.",
		zap.Bool("pass", verdict.Pass),
		zap.Int("exit_code", verdict.ExitCode),
		zap.Bool("timed_out", verdict.TimedOut),
		zap.Duration("duration", verdict.Duration),
	)
	keep = o.keepOnFail && !verdict.Pass
	return verdict, nil
}

// Close releases the runner.
func (o *Oracle) Close() error {
	return o.runner.Close()
}

func outcome(v schemas.TestVerdict) string {
	switch {
	case v.TimedOut:
		return "timeout"
	case v.Pass:
		return "pass"
	default:
		return "fail"
	}
}

// relativeTo resolves path against root and rejects anything that escapes it.
func relativeTo(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("candidate path is empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("could not determine relative path for %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return rel, nil
}
