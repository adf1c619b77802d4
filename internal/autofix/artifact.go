// internal/autofix/artifact.go
package autofix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// Artifact formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Artifact is the persisted summary of a finished session.
type Artifact struct {
	SessionID       string         `json:"session_id" yaml:"session_id"`
	Path            string         `json:"path" yaml:"path"`
	Status          string         `json:"status" yaml:"status"`
	DiffHunks       []schemas.Hunk `json:"diff_hunks" yaml:"diff_hunks"`
	Unified         string         `json:"unified_diff,omitempty" yaml:"unified_diff,omitempty"`
	Explanation     string         `json:"explanation" yaml:"explanation"`
	AttemptCount    int            `json:"attempt_count" yaml:"attempt_count"`
	FinalTestOutput string         `json:"final_test_output" yaml:"final_test_output"`
}

// NewArtifact projects r onto the artifact layout.
func NewArtifact(r *schemas.Result) Artifact {
	a := Artifact{
		SessionID:       r.SessionID,
		Path:            r.Path,
		Status:          string(r.Status),
		DiffHunks:       []schemas.Hunk{},
		Explanation:     r.Explanation,
		AttemptCount:    r.AttemptCount(),
		FinalTestOutput: r.FinalTestOutput,
	}
	if r.Diff != nil {
		if r.Diff.Hunks != nil {
			a.DiffHunks = r.Diff.Hunks
		}
		a.Unified = r.Diff.Unified
	}
	return a
}

// Encode renders the artifact as JSON or YAML.
func (a Artifact) Encode(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(a, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(a)
	default:
		return nil, fmt.Errorf("unknown artifact format %q", format)
	}
}

// FormatFromPath picks the format from the file extension, falling back to
// fallback.
func FormatFromPath(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return fallback
	}
}

// WriteArtifact encodes r and writes it to path.
func WriteArtifact(path, format string, r *schemas.Result) error {
	data, err := NewArtifact(r).Encode(FormatFromPath(path, format))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact to '%s': %w", path, err)
	}
	return nil
}
