// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// fencedBlockRegex matches every fenced block anywhere in the text, capturing the info string and body.
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60([a-zA-Z0-9_+-]*)[^\\n]*\\n(.*?)\x60\x60\x60")
)

// ParseJSONResponse attempts to parse an LLM response string into a target Go type using generics.
// It handles common LLM formatting issues, such as wrapping the JSON in markdown code blocks.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if (isObject || isArray) && (!strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[")) {
		// The structure is embedded in conversational text.
		first, last := -1, -1
		if isObject {
			fb := strings.Index(response, "{")
			lb := strings.LastIndex(response, "}")
			if fb != -1 && lb > fb {
				first, last = fb, lb+1
			}
		}
		if first == -1 && isArray {
			fb := strings.Index(response, "[")
			lb := strings.LastIndex(response, "]")
			if fb != -1 && lb > fb {
				first, last = fb, lb+1
			}
		}
		if first != -1 {
			jsonStringToParse = response[first:last]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(jsonStringToParse, 500))
	}
	return &result, nil
}

// CodeBlock is one fenced block found in a model response.
type CodeBlock struct {
	Lang string
	Body string
}

// FindCodeBlocks returns every fenced block in content, in order of appearance.
func FindCodeBlocks(content string) []CodeBlock {
	matches := fencedBlockRegex.FindAllStringSubmatch(content, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, CodeBlock{Lang: strings.ToLower(m[1]), Body: m[2]})
	}
	return blocks
}

// ExtractCode pulls the code payload out of a model response. A block whose
// info string matches one of langAliases wins; otherwise the largest block is
// used. A response with no fences is returned trimmed, as-is. The second
// return value reports whether a fenced block was found.
func ExtractCode(content string, langAliases ...string) (string, bool) {
	blocks := FindCodeBlocks(content)
	if len(blocks) == 0 {
		return strings.TrimSpace(content), false
	}

	for _, b := range blocks {
		for _, alias := range langAliases {
			if b.Lang == strings.ToLower(alias) {
				return b.Body, true
			}
		}
	}

	best := blocks[0]
	for _, b := range blocks[1:] {
		if len(b.Body) > len(best.Body) {
			best = b
		}
	}
	return best.Body, true
}

// Truncate shortens s to at most maxLen bytes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for logging.
	return s[:maxLen] + "..."
}
