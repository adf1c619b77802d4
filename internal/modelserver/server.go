// Package modelserver manages the local llama.cpp inference server: a
// detached process group with a pid file, a log file and an
// OpenAI-compatible health probe.
package modelserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/internal/config"
)

var (
	// ErrNotRunning is returned by Stop when there is no recorded server.
	ErrNotRunning = errors.New("model server is not running")
	// ErrNoModels means the models directory holds no GGUF files.
	ErrNoModels = errors.New("no models found")
	// ErrModelNotFound means the requested model file does not exist.
	ErrModelNotFound = errors.New("model not found")
	// ErrServerExited means the server process died during startup.
	ErrServerExited = errors.New("model server exited during startup")
)

const (
	logFileName   = "server.log"
	probeTimeout  = 2 * time.Second
	defaultPoll   = time.Second
	modelFileGlob = "*.gguf"
)

// Model is a GGUF file available to serve.
type Model struct {
	Name string
	Path string
	Size int64
}

// Process describes a started or already running server.
type Process struct {
	PID            int
	Model          string
	URL            string
	LogPath        string
	AlreadyRunning bool
}

// Server controls the local inference server described by cfg.
type Server struct {
	cfg          config.ServerConfig
	logger       *zap.Logger
	pollInterval time.Duration
}

// New creates a Server controller.
func New(cfg config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger.Named("modelserver"),
		pollInterval: defaultPoll,
	}
}

// BaseURL is the OpenAI-compatible endpoint of the server.
func (s *Server) BaseURL() string {
	return fmt.Sprintf("http://%s:%d/v1", s.cfg.Host, s.cfg.Port)
}

// LogPath is the file the server writes its output to.
func (s *Server) LogPath() string {
	return filepath.Join(s.cfg.LogsDir, logFileName)
}

// IsRunning reports whether the server answers GET /v1/models.
func (s *Server) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	oaCfg := openai.DefaultConfig("")
	oaCfg.BaseURL = s.BaseURL()
	_, err := openai.NewClientWithConfig(oaCfg).ListModels(ctx)
	return err == nil
}

// ListModels returns the GGUF files in the models directory, sorted by name.
func (s *Server) ListModels() ([]Model, error) {
	paths, err := filepath.Glob(filepath.Join(s.cfg.ModelsDir, modelFileGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	models := make([]Model, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		models = append(models, Model{Name: filepath.Base(p), Path: p, Size: info.Size()})
	}
	return models, nil
}

// ResolveModel maps a model name to its file. An empty name selects the
// configured default when present, otherwise the first available model.
func (s *Server) ResolveModel(name string) (Model, error) {
	if name == "" && s.cfg.DefaultModel != "" {
		if m, err := s.ResolveModel(s.cfg.DefaultModel); err == nil {
			return m, nil
		}
	}
	if name == "" {
		models, err := s.ListModels()
		if err != nil {
			return Model{}, err
		}
		if len(models) == 0 {
			return Model{}, fmt.Errorf("%w in %s", ErrNoModels, s.cfg.ModelsDir)
		}
		return models[0], nil
	}

	p := filepath.Join(s.cfg.ModelsDir, filepath.Base(name))
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return Model{}, fmt.Errorf("%w: %s in %s", ErrModelNotFound, name, s.cfg.ModelsDir)
	}
	return Model{Name: filepath.Base(p), Path: p, Size: info.Size()}, nil
}

func (s *Server) command(modelPath string) *exec.Cmd {
	python := s.cfg.Python
	if python == "" {
		python = "python3"
	}
	chatFormat := s.cfg.ChatFormat
	if chatFormat == "" {
		chatFormat = "chatml"
	}
	cmd := exec.Command(python, "-m", "llama_cpp.server",
		"--model", modelPath,
		"--host", s.cfg.Host,
		"--port", strconv.Itoa(s.cfg.Port),
		"--n_gpu_layers", strconv.Itoa(s.cfg.GPULayers),
		"--n_ctx", strconv.Itoa(s.cfg.ContextSize),
		"--chat_format", chatFormat,
	)
	// Own process group so the server outlives the CLI and Stop can kill
	// its children with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// Start launches the server for model (empty selects a default) and waits
// until it answers or the startup timeout passes.
func (s *Server) Start(ctx context.Context, model string) (*Process, error) {
	if s.IsRunning(ctx) {
		pid, _ := s.ReadPID()
		s.logger.Info("Model server already running.", zap.String("url", s.BaseURL()), zap.Int("pid", pid))
		return &Process{PID: pid, URL: s.BaseURL(), LogPath: s.LogPath(), AlreadyRunning: true}, nil
	}

	m, err := s.ResolveModel(model)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	logFile, err := os.Create(s.LogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create server log: %w", err)
	}
	defer logFile.Close()

	cmd := s.command(m.Path)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start model server: %w", err)
	}
	pid := cmd.Process.Pid
	if err := s.writePID(pid); err != nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return nil, err
	}
	s.logger.Info("Model server booting.", zap.Int("pid", pid), zap.String("model", m.Name), zap.String("log", s.LogPath()))

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	proc := &Process{PID: pid, Model: m.Name, URL: s.BaseURL(), LogPath: s.LogPath()}
	timeout := s.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			_ = s.removePID()
			return nil, fmt.Errorf("%w (%v), check %s", ErrServerExited, err, s.LogPath())
		case <-ctx.Done():
			return proc, ctx.Err()
		case <-deadline.C:
			return proc, fmt.Errorf("timed out after %s waiting for the model server at %s", timeout, s.BaseURL())
		case <-ticker.C:
			if s.IsRunning(ctx) {
				s.logger.Info("Model server online.", zap.String("url", s.BaseURL()))
				return proc, nil
			}
		}
	}
}

// Stop kills the server's process group and removes the pid file. A stale
// pid file is cleaned up without error.
func (s *Server) Stop() (int, error) {
	pid, err := s.ReadPID()
	if err != nil {
		return 0, err
	}
	defer func() { _ = s.removePID() }()

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			s.logger.Info("Model server process already gone.", zap.Int("pid", pid))
			return pid, nil
		}
		return pid, fmt.Errorf("failed to stop model server (pid %d): %w", pid, err)
	}
	s.logger.Info("Model server stopped.", zap.Int("pid", pid))
	return pid, nil
}

// ReadPID returns the pid recorded by Start.
func (s *Server) ReadPID() (int, error) {
	data, err := os.ReadFile(s.cfg.PIDFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: corrupt pid file %s", ErrNotRunning, s.cfg.PIDFile)
	}
	return pid, nil
}

func (s *Server) writePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.PIDFile), 0o755); err != nil {
		return fmt.Errorf("failed to create pid file directory: %w", err)
	}
	if err := os.WriteFile(s.cfg.PIDFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

func (s *Server) removePID() error {
	err := os.Remove(s.cfg.PIDFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
