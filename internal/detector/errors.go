package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage is returned for a language with no rule set.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrDetectorUnavailable means the analysis backend crashed or timed out.
	// Callers treat it as non-fatal and continue with no findings.
	ErrDetectorUnavailable = errors.New("detector unavailable")
	// ErrEmptySource is returned when there is no content to analyze.
	ErrEmptySource = errors.New("source content is empty")
)

// LinterError records why an external linter could not produce a result.
type LinterError struct {
	Tool string
	Err  error
}

func (e *LinterError) Error() string {
	return fmt.Sprintf("linter %s failed: %v", e.Tool, e.Err)
}

func (e *LinterError) Unwrap() error { return e.Err }
