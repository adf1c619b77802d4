package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type explanation struct {
	Summary string   `json:"summary"`
	Changes []string `json:"changes"`
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     explanation
	}{
		{
			name:     "plain object",
			response: `{"summary":"fixed","changes":["a"]}`,
			want:     explanation{Summary: "fixed", Changes: []string{"a"}},
		},
		{
			name:     "markdown wrapped",
			response: "```json\n{\"summary\":\"wrapped\"}\n```",
			want:     explanation{Summary: "wrapped"},
		},
		{
			name:     "conversational prefix",
			response: "Sure! Here it is: {\"summary\":\"chatty\",\"changes\":[]} hope that helps",
			want:     explanation{Summary: "chatty", Changes: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse[explanation](tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseJSONResponse[explanation]("{not json}")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
	})
}

func TestExtractCode(t *testing.T) {
	t.Run("no fences returns trimmed input", func(t *testing.T) {
		code, found := ExtractCode("  def f():\n    return 1\n  ")
		assert.False(t, found)
		assert.Equal(t, "def f():\n    return 1", code)
	})

	t.Run("prefers the block tagged with the language", func(t *testing.T) {
		resp := "Here is a shell command:\n```bash\npytest -q\n```\nAnd the fix:\n```python\ndef f():\n    return 1\n```\n"
		code, found := ExtractCode(resp, "python", "py")
		assert.True(t, found)
		assert.Equal(t, "def f():\n    return 1\n", code)
	})

	t.Run("falls back to the largest block", func(t *testing.T) {
		resp := "```\nx\n```\ntext\n```\nlonger body\nline two\n```"
		code, found := ExtractCode(resp, "go")
		assert.True(t, found)
		assert.Equal(t, "longer body\nline two\n", code)
	})

	t.Run("ignores extra info string words", func(t *testing.T) {
		blocks := FindCodeBlocks("```go title=main.go\npackage main\n```")
		require.Len(t, blocks, 1)
		assert.Equal(t, "go", blocks[0].Lang)
		assert.Equal(t, "package main\n", blocks[0].Body)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}
