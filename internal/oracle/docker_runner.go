package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// removeTimeout bounds container teardown, which runs on a fresh context so it
// still happens after the caller's context is done.
const removeTimeout = 30 * time.Second

// DockerRunner executes the test command in a throwaway container with the
// workspace bind-mounted at the configured working directory.
type DockerRunner struct {
	client    *client.Client
	logger    *zap.Logger
	image     string
	workDir   string
	network   string
	env       []string
	maxOutput int
}

// NewDockerRunner connects to the daemon described by the DOCKER_* environment.
func NewDockerRunner(cfg config.DockerConfig, env []string, maxOutput int, logger *zap.Logger) (*DockerRunner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker runner requires an image")
	}
	cli, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "/workspace"
	}
	return &DockerRunner{
		client:    cli,
		logger:    logger.Named("runner.docker").With(zap.String("image", cfg.Image)),
		image:     cfg.Image,
		workDir:   workDir,
		network:   cfg.Network,
		env:       env,
		maxOutput: maxOutput,
	}, nil
}

// Run creates, starts and waits for a container, then collects its logs. The
// container is force-removed on every exit path.
func (r *DockerRunner) Run(ctx context.Context, dir, command string) (schemas.TestVerdict, error) {
	if err := ctx.Err(); err != nil {
		return schemas.TestVerdict{}, err
	}

	start := time.Now()
	created, err := r.client.ContainerCreate(ctx, r.createOptions(dir, command))
	if err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("failed to create container: %w", err)
	}
	id := created.ID
	defer r.remove(id)

	if _, err := r.client.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return schemas.TestVerdict{}, fmt.Errorf("failed to start container: %w", err)
	}

	verdict := schemas.TestVerdict{ExitCode: -1}
	waitResult := r.client.ContainerWait(ctx, id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	select {
	case resp := <-waitResult.Result:
		verdict.ExitCode = int(resp.StatusCode)
	case err := <-waitResult.Error:
		if ctx.Err() == nil {
			return schemas.TestVerdict{}, fmt.Errorf("failed waiting for container: %w", err)
		}
	case <-ctx.Done():
	}
	verdict.Duration = time.Since(start)
	verdict.Stdout = r.logs(id)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			verdict.TimedOut = true
			r.logger.Warn("Test container timed out.", zap.String("container_id", id), zap.Duration("duration", verdict.Duration))
			return verdict, nil
		}
		return verdict, ctxErr
	}

	verdict.Pass = verdict.ExitCode == 0
	return verdict, nil
}

// Close releases the daemon connection.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

func (r *DockerRunner) createOptions(dir, command string) client.ContainerCreateOptions {
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", dir, r.workDir)},
	}
	if r.network != "" {
		hostCfg.NetworkMode = container.NetworkMode(r.network)
	}
	return client.ContainerCreateOptions{
		Image: r.image,
		Config: &container.Config{
			Cmd:        []string{"/bin/sh", "-c", command},
			Env:        r.env,
			WorkingDir: r.workDir,
			// A TTY gives one raw, unmultiplexed log stream.
			Tty:          true,
			AttachStdout: true,
			AttachStderr: true,
		},
		HostConfig: hostCfg,
	}
}

func (r *DockerRunner) logs(id string) string {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	rc, err := r.client.ContainerLogs(ctx, id, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		r.logger.Warn("Failed to read container logs.", zap.String("container_id", id), zap.Error(err))
		return ""
	}
	defer rc.Close()

	buf := newCappedBuffer(r.maxOutput)
	if _, err := io.Copy(buf, rc); err != nil {
		r.logger.Warn("Container log stream ended early.", zap.String("container_id", id), zap.Error(err))
	}
	return buf.String()
}

func (r *DockerRunner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	_, err := r.client.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		r.logger.Error("Failed to remove test container.", zap.String("container_id", id), zap.Error(err))
	}
}
