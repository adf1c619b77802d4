package schemas_test

import (
	"reflect"
	"testing"

	// Third party libraries for expressive and robust assertions.
	"github.com/stretchr/testify/assert"

	// Import the package we are testing.
	"github.com/xkilldash9x/codedoc/api/schemas"
)

// TestStructJSONTags uses reflection to verify that the `json` tags on struct fields
// are correct. Archived sessions and artifacts depend on these names.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Finding",
			structRef: schemas.Finding{},
			expectedTags: map[string]string{
				"Kind":     "kind",
				"Rule":     "rule",
				"Location": "location",
				"Message":  "message",
				"Severity": "severity",
				"Source":   "source,omitempty",
			},
		},
		{
			name:      "TestVerdict",
			structRef: schemas.TestVerdict{},
			expectedTags: map[string]string{
				"Pass":     "pass",
				"ExitCode": "exit_code",
				"Stdout":   "stdout",
				"Stderr":   "stderr",
				"TimedOut": "timed_out",
				"Duration": "duration",
			},
		},
		{
			name:      "Hunk",
			structRef: schemas.Hunk{},
			expectedTags: map[string]string{
				"Op":        "op",
				"OrigStart": "orig_start",
				"OrigLines": "orig_lines,omitempty",
				"NewStart":  "new_start",
				"NewLines":  "new_lines,omitempty",
			},
		},
		{
			name:      "Attempt",
			structRef: schemas.Attempt{},
			expectedTags: map[string]string{
				"Ordinal":    "ordinal",
				"Prompt":     "prompt",
				"RawOutput":  "raw_output",
				"Candidate":  "candidate,omitempty",
				"Verdict":    "verdict,omitempty",
				"Status":     "status",
				"Error":      "error,omitempty",
				"StartedAt":  "started_at",
				"FinishedAt": "finished_at",
			},
		},
		{
			name:      "GenerationOptions",
			structRef: schemas.GenerationOptions{},
			expectedTags: map[string]string{
				"MaxTokens":       "max_tokens",
				"Temperature":     "temperature",
				"TopP":            "top_p",
				"StopSequences":   "stop_sequences",
				"Timeout":         "timeout",
				"ForceJSONFormat": "force_json_format",
			},
		},
	}

	for _, tc := range testCases {
		// Capture the range variable to avoid issues in parallel tests.
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			actualTags := make(map[string]string)

			for i := 0; i < structType.NumField(); i++ {
				field := structType.Field(i)
				jsonTag := field.Tag.Get("json")
				if jsonTag != "" {
					actualTags[field.Name] = jsonTag
				}
			}

			assert.Equal(t, tt.expectedTags, actualTags, "JSON tags for struct %s do not match expectations", tt.name)
		})
	}
}
