// internal/autofix/artifact_test.go
package autofix

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

func sampleResult() *schemas.Result {
	candidate := "import sys\n"
	return &schemas.Result{
		SessionID: "abc",
		Path:      "m.py",
		Status:    schemas.ResultSuccess,
		Candidate: &candidate,
		Diff: &schemas.Diff{
			Path:    "m.py",
			Hunks:   []schemas.Hunk{{Op: schemas.HunkDelete, OrigStart: 1, OrigLines: []string{"import os"}, NewStart: 1}},
			Removed: 1,
			Unified: "--- a/m.py\n+++ b/m.py\n@@ -1,2 +1,1 @@\n-import os\n import sys\n",
		},
		Explanation:     "0 lines added, 1 line removed in 1 hunk.",
		Attempts:        []schemas.Attempt{{Ordinal: 1, Status: schemas.AttemptAccepted}},
		FinalTestOutput: "1 passed",
	}
}

func TestArtifact_JSON(t *testing.T) {
	data, err := NewArtifact(sampleResult()).Encode(FormatJSON)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, float64(1), got["attempt_count"])
	assert.Equal(t, "1 passed", got["final_test_output"])
	assert.Equal(t, "0 lines added, 1 line removed in 1 hunk.", got["explanation"])
	hunks, ok := got["diff_hunks"].([]any)
	require.True(t, ok)
	assert.Len(t, hunks, 1)
}

func TestArtifact_YAML(t *testing.T) {
	data, err := NewArtifact(sampleResult()).Encode("yml")
	require.NoError(t, err)

	var got Artifact
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.Len(t, got.DiffHunks, 1)
	assert.Equal(t, []string{"import os"}, got.DiffHunks[0].OrigLines)
}

func TestArtifact_AbortedHasEmptyHunks(t *testing.T) {
	a := NewArtifact(&schemas.Result{Status: schemas.ResultAborted})
	assert.NotNil(t, a.DiffHunks)
	assert.Empty(t, a.DiffHunks)
	assert.Equal(t, 0, a.AttemptCount)

	data, err := a.Encode(FormatJSON)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	hunks, ok := got["diff_hunks"].([]any)
	require.True(t, ok, "diff_hunks must encode as an empty list, not null")
	assert.Empty(t, hunks)
}

func TestArtifact_UnknownFormat(t *testing.T) {
	_, err := NewArtifact(sampleResult()).Encode("toml")
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("out.yaml", FormatJSON))
	assert.Equal(t, FormatYAML, FormatFromPath("out.YML", FormatJSON))
	assert.Equal(t, FormatJSON, FormatFromPath("out.json", FormatYAML))
	assert.Equal(t, FormatYAML, FormatFromPath("out.txt", FormatYAML))
}

func TestWriteArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.yaml")
	require.NoError(t, WriteArtifact(path, FormatJSON, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "status: success")

	assert.Error(t, WriteArtifact(filepath.Join(t.TempDir(), "missing", "r.json"), FormatJSON, sampleResult()))
}
