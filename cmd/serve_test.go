package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelListCmd(t *testing.T) {
	env := newTestEnv(t, "")
	modelsDir := filepath.Join(env.dir, "models")

	out, err := execute(t, NewRootCommand(), "-c", env.configPath, "model", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No models found in "+modelsDir)

	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "b.gguf"), make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "a.gguf"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "notes.txt"), nil, 0o644))

	out, err = execute(t, NewRootCommand(), "-c", env.configPath, "model", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 model(s):")
	assert.Contains(t, out, "a.gguf (0.00 GB)")
	assert.NotContains(t, out, "notes.txt")
	assert.Less(t, strings.Index(out, "a.gguf"), strings.Index(out, "b.gguf"))
}

func TestKillCmd_NoServer(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := execute(t, NewRootCommand(), "-c", env.configPath, "kill")
	require.NoError(t, err)
	assert.Contains(t, out, "No server is running.")
}

func TestServerStatusCmd_NotAnswering(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := execute(t, NewRootCommand(), "-c", env.configPath, "server", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is not answering at http://127.0.0.1:1/v1")
}

func TestServerLogsCmd(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := execute(t, NewRootCommand(), "-c", env.configPath, "server", "logs")
	assert.Error(t, err, "no log file yet")

	logsDir := filepath.Join(env.dir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logsDir, "server.log"), []byte("loading model\nUvicorn running\n"), 0o644))

	out, err := execute(t, NewRootCommand(), "-c", env.configPath, "server", "logs")
	require.NoError(t, err)
	assert.Equal(t, "loading model\nUvicorn running\n", out)
}

func TestServeCmd_MissingModel(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := execute(t, NewRootCommand(), "-c", env.configPath, "serve", "ghost.gguf", "--port", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost.gguf")
}
