package diffcomposer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

const noNewline = "\\ No newline at end of file\n"

// tokens splits s into lines that keep their terminators, so a missing final
// newline shows up as a changed last line.
func tokens(s string) []string {
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Unified renders the change from original to candidate as a unified diff
// with the composer's context width. It returns "" when nothing changed.
func (c *Composer) Unified(path, original, candidate string) string {
	fd := c.fileDiff(path, original, candidate)
	if len(fd.Hunks) == 0 {
		return ""
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return ""
	}
	return string(out)
}

func (c *Composer) fileDiff(path, original, candidate string) *diff.FileDiff {
	name := filepath.ToSlash(filepath.Clean(path))
	fd := &diff.FileDiff{OrigName: "a/" + name, NewName: "b/" + name}

	a, b := tokens(original), tokens(candidate)
	groups := c.group(spans(editScript(a, b)))
	for _, g := range groups {
		fd.Hunks = append(fd.Hunks, c.hunk(a, b, g))
	}
	return fd
}

// group merges spans whose unchanged gap fits inside the shared context.
func (c *Composer) group(ss []span) [][]span {
	var groups [][]span
	for _, s := range ss {
		if n := len(groups); n > 0 {
			last := groups[n-1][len(groups[n-1])-1]
			if s.a0-last.a1 <= 2*c.contextLines {
				groups[n-1] = append(groups[n-1], s)
				continue
			}
		}
		groups = append(groups, []span{s})
	}
	return groups
}

func (c *Composer) hunk(a, b []string, g []span) *diff.Hunk {
	first, last := g[0], g[len(g)-1]
	origStart := max(0, first.a0-c.contextLines)
	origEnd := min(len(a), last.a1+c.contextLines)
	newStart := first.b0 - (first.a0 - origStart)
	newEnd := last.b1 + (origEnd - last.a1)

	var body bytes.Buffer
	writeLine := func(prefix byte, line string) {
		body.WriteByte(prefix)
		body.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			body.WriteString("\n" + noNewline)
		}
	}

	cursor := origStart
	for _, s := range g {
		for ; cursor < s.a0; cursor++ {
			writeLine(' ', a[cursor])
		}
		for i := s.a0; i < s.a1; i++ {
			writeLine('-', a[i])
		}
		for j := s.b0; j < s.b1; j++ {
			writeLine('+', b[j])
		}
		cursor = s.a1
	}
	for ; cursor < origEnd; cursor++ {
		writeLine(' ', a[cursor])
	}

	return &diff.Hunk{
		OrigStartLine: headerStart(origStart, origEnd-origStart),
		OrigLines:     int32(origEnd - origStart),
		NewStartLine:  headerStart(newStart, newEnd-newStart),
		NewLines:      int32(newEnd - newStart),
		Body:          body.Bytes(),
	}
}

// headerStart converts a 0-based offset to the 1-based header line. An empty
// range names the line before it, per the unified format.
func headerStart(start, count int) int32 {
	if count == 0 {
		return int32(start)
	}
	return int32(start + 1)
}

// ParseUnified reads a unified diff produced by Unified (or any tool) back
// into its hunks.
func ParseUnified(text string) (*diff.FileDiff, error) {
	return diff.ParseFileDiff([]byte(text))
}

// LineStat counts added and removed lines in a parsed file diff.
func LineStat(fd *diff.FileDiff) (added, removed int) {
	for _, h := range fd.Hunks {
		for _, line := range strings.Split(string(h.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				added++
			case strings.HasPrefix(line, "-"):
				removed++
			}
		}
	}
	return added, removed
}

// FromUnified converts a parsed unified diff into line hunks that Apply can
// replay. Context lines are consumed but not verified; "\ No newline" markers
// are ignored, so the original's final newline is kept.
func FromUnified(fd *diff.FileDiff) (*schemas.Diff, error) {
	d := &schemas.Diff{Path: strings.TrimPrefix(fd.NewName, "b/"), Hunks: []schemas.Hunk{}}

	for i, h := range fd.Hunks {
		o, n := int(h.OrigStartLine), int(h.NewStartLine)
		// An empty range names the line before the edit.
		if h.OrigLines == 0 {
			o++
		}
		if h.NewLines == 0 {
			n++
		}

		var run *schemas.Hunk
		flush := func() {
			if run == nil {
				return
			}
			switch {
			case len(run.OrigLines) == 0:
				run.Op = schemas.HunkInsert
			case len(run.NewLines) == 0:
				run.Op = schemas.HunkDelete
			default:
				run.Op = schemas.HunkReplace
			}
			d.Added += len(run.NewLines)
			d.Removed += len(run.OrigLines)
			d.Hunks = append(d.Hunks, *run)
			run = nil
		}
		open := func() {
			if run == nil {
				run = &schemas.Hunk{OrigStart: o, NewStart: n}
			}
		}

		body := strings.TrimSuffix(string(h.Body), "\n")
		if body == "" {
			continue
		}
		for _, line := range strings.Split(body, "\n") {
			if line == "" {
				// Some tools drop the leading space of blank context lines.
				line = " "
			}
			switch line[0] {
			case ' ':
				flush()
				o++
				n++
			case '-':
				open()
				run.OrigLines = append(run.OrigLines, line[1:])
				o++
			case '+':
				open()
				run.NewLines = append(run.NewLines, line[1:])
				n++
			case '\\':
			default:
				return nil, fmt.Errorf("%w: hunk %d has malformed line %q", ErrHunkMismatch, i+1, line)
			}
		}
		flush()
	}
	return d, nil
}

// ApplyUnified parses patch and applies it to original.
func (c *Composer) ApplyUnified(original, patch string) (string, error) {
	fd, err := ParseUnified(patch)
	if err != nil {
		return "", fmt.Errorf("failed to parse unified diff: %w", err)
	}
	if len(fd.Hunks) == 0 {
		return "", fmt.Errorf("%w: patch contains no hunks", ErrHunkMismatch)
	}
	d, err := FromUnified(fd)
	if err != nil {
		return "", err
	}
	return c.Apply(original, d)
}
