// Package diffcomposer computes line-level diffs between an original source
// and a repaired candidate, applies them, and summarizes them for humans.
package diffcomposer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// ErrHunkMismatch is returned by Apply when a hunk does not match the text it is applied to.
var ErrHunkMismatch = errors.New("hunk does not apply")

// Composer builds diffs. The zero value is not usable; call New.
type Composer struct {
	contextLines int
}

// Option configures a Composer.
type Option func(*Composer)

// WithContextLines sets the number of unchanged lines shown around each
// hunk in the unified rendering.
func WithContextLines(n int) Option {
	return func(c *Composer) {
		if n >= 0 {
			c.contextLines = n
		}
	}
}

// New returns a Composer with three lines of unified context.
func New(opts ...Option) *Composer {
	c := &Composer{contextLines: 3}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// splitLines splits on "\n" without dropping the trailing empty element, so
// strings.Join(splitLines(s), "\n") == s for every s.
func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

// Compose returns the line diff that turns original into candidate. Hunks are
// in ascending order and the result is deterministic for identical inputs.
func (c *Composer) Compose(path, original, candidate string) *schemas.Diff {
	a, b := splitLines(original), splitLines(candidate)
	d := &schemas.Diff{Path: path, Hunks: []schemas.Hunk{}}

	for _, s := range spans(editScript(a, b)) {
		h := schemas.Hunk{
			OrigStart: s.a0 + 1,
			NewStart:  s.b0 + 1,
		}
		if s.a1 > s.a0 {
			h.OrigLines = append([]string(nil), a[s.a0:s.a1]...)
		}
		if s.b1 > s.b0 {
			h.NewLines = append([]string(nil), b[s.b0:s.b1]...)
		}
		switch {
		case len(h.OrigLines) == 0:
			h.Op = schemas.HunkInsert
		case len(h.NewLines) == 0:
			h.Op = schemas.HunkDelete
		default:
			h.Op = schemas.HunkReplace
		}
		d.Added += len(h.NewLines)
		d.Removed += len(h.OrigLines)
		d.Hunks = append(d.Hunks, h)
	}

	if len(d.Hunks) > 0 {
		d.Unified = c.Unified(path, original, candidate)
	}
	return d
}

// Apply replays d against original. It fails with ErrHunkMismatch if the
// hunks are out of order or the original lines they name are not present.
func (c *Composer) Apply(original string, d *schemas.Diff) (string, error) {
	if d.Empty() {
		return original, nil
	}
	lines := splitLines(original)
	out := make([]string, 0, len(lines))
	pos := 1 // next original line to copy, 1-based

	for i, h := range d.Hunks {
		if h.OrigStart < pos || h.OrigStart > len(lines)+1 {
			return "", fmt.Errorf("%w: hunk %d starts at line %d, cursor at %d", ErrHunkMismatch, i+1, h.OrigStart, pos)
		}
		out = append(out, lines[pos-1:h.OrigStart-1]...)

		end := h.OrigStart - 1 + len(h.OrigLines)
		if end > len(lines) {
			return "", fmt.Errorf("%w: hunk %d runs past the end of the original", ErrHunkMismatch, i+1)
		}
		for k, want := range h.OrigLines {
			if got := lines[h.OrigStart-1+k]; got != want {
				return "", fmt.Errorf("%w: hunk %d line %d: expected %q, found %q", ErrHunkMismatch, i+1, h.OrigStart+k, want, got)
			}
		}
		out = append(out, h.NewLines...)
		pos = end + 1
	}
	if pos <= len(lines) {
		out = append(out, lines[pos-1:]...)
	}
	return strings.Join(out, "\n"), nil
}
