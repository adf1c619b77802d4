package detector

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Language is a canonical language tag.
type Language string

const (
	LangPython     Language = "python"
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
)

var languageAliases = map[string]Language{
	"python":     LangPython,
	"py":         LangPython,
	"python3":    LangPython,
	"go":         LangGo,
	"golang":     LangGo,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"node":       LangJavaScript,
}

var extensionLanguages = map[string]Language{
	".py":  LangPython,
	".go":  LangGo,
	".js":  LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
}

// ResolveLanguage maps a language tag, or the path's extension when the tag
// is empty, to a canonical Language.
func ResolveLanguage(tag, path string) (Language, error) {
	if tag != "" {
		if lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return lang, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, tag)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("%w: cannot infer language from %q", ErrUnsupportedLanguage, path)
}

// Aliases returns the fence tags a model may use for a code block in lang.
func (l Language) Aliases() []string {
	switch l {
	case LangPython:
		return []string{"python", "py", "python3"}
	case LangGo:
		return []string{"go", "golang"}
	case LangJavaScript:
		return []string{"javascript", "js", "node"}
	default:
		return nil
	}
}

// Extension returns the canonical file extension for l.
func (l Language) Extension() string {
	switch l {
	case LangPython:
		return ".py"
	case LangGo:
		return ".go"
	case LangJavaScript:
		return ".js"
	default:
		return ""
	}
}

func grammarFor(l Language) *sitter.Language {
	switch l {
	case LangPython:
		return python.GetLanguage()
	case LangGo:
		return golang.GetLanguage()
	case LangJavaScript:
		return javascript.GetLanguage()
	default:
		return nil
	}
}
