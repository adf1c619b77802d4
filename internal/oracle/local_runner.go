package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// LocalRunner executes the test command on the host through /bin/sh -c. The
// command runs in its own process group so everything it spawns can be
// killed when the deadline passes.
type LocalRunner struct {
	logger    *zap.Logger
	shell     string
	env       []string
	maxOutput int
	waitDelay time.Duration
}

// NewLocalRunner creates a runner that appends env to the inherited
// environment and keeps at most maxOutput bytes of each output stream.
func NewLocalRunner(env []string, maxOutput int, logger *zap.Logger) *LocalRunner {
	return &LocalRunner{
		logger:    logger.Named("runner.local"),
		shell:     "/bin/sh",
		env:       env,
		maxOutput: maxOutput,
		waitDelay: 2 * time.Second,
	}
}

// Run executes command in dir. Deadline expiry produces a TimedOut verdict
// and no error; caller cancellation is returned as an error.
func (r *LocalRunner) Run(ctx context.Context, dir, command string) (schemas.TestVerdict, error) {
	if err := ctx.Err(); err != nil {
		return schemas.TestVerdict{}, err
	}

	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput)

	cmd := exec.Command(r.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("failed to start test command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		r.killGroup(cmd.Process.Pid)
		waitErr = <-done
	}

	verdict := schemas.TestVerdict{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		verdict.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			verdict.TimedOut = true
			r.logger.Warn("Test command timed out; process group killed.",
				zap.String("dir", dir), zap.Duration("duration", verdict.Duration))
			return verdict, nil
		}
		return verdict, ctxErr
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return verdict, fmt.Errorf("test command failed to run: %w", waitErr)
	}

	verdict.Pass = verdict.ExitCode == 0
	return verdict, nil
}

// Close is a no-op for the local runner.
func (r *LocalRunner) Close() error { return nil }

func (r *LocalRunner) killGroup(pid int) {
	// A negative pid addresses the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn("Failed to kill test process group.", zap.Int("pgid", pid), zap.Error(err))
	}
}
