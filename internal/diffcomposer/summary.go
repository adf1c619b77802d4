package diffcomposer

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// kindOrder fixes the order kinds are listed in a summary.
var kindOrder = []schemas.FindingKind{
	schemas.KindCorrectnessRisk,
	schemas.KindUnusedSymbol,
	schemas.KindComplexity,
	schemas.KindStyle,
	schemas.KindOther,
}

// Summary is the human-readable account of a diff.
type Summary struct {
	Added   int                   `json:"added" yaml:"added"`
	Removed int                   `json:"removed" yaml:"removed"`
	Hunks   int                   `json:"hunks" yaml:"hunks"`
	Kinds   []schemas.FindingKind `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	Text    string                `json:"text" yaml:"text"`
}

// Summarize counts the changed lines of d and lists the kinds of findings
// whose line falls inside, or directly next to, a changed region of the
// original.
func (c *Composer) Summarize(d *schemas.Diff, findings []schemas.Finding) Summary {
	if d.Empty() {
		return Summary{Text: "No changes."}
	}

	touched := make(map[schemas.FindingKind]bool)
	for _, f := range findings {
		for _, h := range d.Hunks {
			if touches(h, f.Location.Line) {
				touched[f.Kind] = true
				break
			}
		}
	}

	s := Summary{Added: d.Added, Removed: d.Removed, Hunks: len(d.Hunks)}
	for _, k := range kindOrder {
		if touched[k] {
			s.Kinds = append(s.Kinds, k)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s added, %s removed in %s",
		plural(s.Added, "line"), plural(s.Removed, "line"), plural(s.Hunks, "hunk"))
	if len(s.Kinds) > 0 {
		names := make([]string, len(s.Kinds))
		for i, k := range s.Kinds {
			names[i] = string(k)
		}
		fmt.Fprintf(&b, "; addresses %s findings", strings.Join(names, ", "))
	}
	b.WriteString(".")
	s.Text = b.String()
	return s
}

// touches reports whether original line falls in h's range. Pure inserts
// cover the lines on either side of the insertion point.
func touches(h schemas.Hunk, line int) bool {
	if len(h.OrigLines) == 0 {
		return line == h.OrigStart-1 || line == h.OrigStart
	}
	return line >= h.OrigStart && line < h.OrigStart+len(h.OrigLines)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
