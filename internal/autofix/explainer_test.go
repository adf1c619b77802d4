// internal/autofix/explainer_test.go
package autofix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

type stubLLM struct {
	reply string
	err   error
	last  schemas.GenerationRequest
}

func (s *stubLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.last = req
	return s.reply, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestExplainer(t *testing.T) {
	d := &schemas.Diff{Path: "m.py", Unified: "--- a/m.py\n+++ b/m.py\n@@ -1 +0,0 @@\n-import os\n"}
	findings := []schemas.Finding{{Rule: "UNUSED_IMPORT", Message: "'os' imported but unused.", Location: schemas.Location{Line: 1}}}
	unit := SourceUnit{Path: "m.py"}

	tests := []struct {
		name    string
		reply   string
		err     error
		want    string
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"summary": "Removed the unused os import.", "changes": ["drop import os", " "]}`,
			want:  "Removed the unused os import.\n- drop import os",
		},
		{
			name:  "fenced json",
			reply: "```json\n{\"summary\": \"Removed it.\"}\n```",
			want:  "Removed it.",
		},
		{name: "missing summary", reply: `{"changes": ["x"]}`, wantErr: true},
		{name: "not json", reply: "I removed the import.", wantErr: true},
		{name: "backend error", err: errors.New("boom"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{reply: tt.reply, err: tt.err}
			e := NewExplainer(zaptest.NewLogger(t), llm, 0)

			got, err := e.Explain(context.Background(), unit, d, findings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			assert.Equal(t, schemas.TierFast, llm.last.Tier)
			assert.True(t, llm.last.Options.ForceJSONFormat)
			assert.Contains(t, llm.last.UserPrompt, "[UNUSED_IMPORT]")
			assert.Contains(t, llm.last.UserPrompt, "-import os")
		})
	}
}
