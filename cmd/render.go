package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/detector"
)

// printer renders CLI output. Styles come from a renderer bound to the
// destination, so colors disappear when it is not a terminal.
type printer struct {
	w       io.Writer
	title   lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	hunk    lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	dim     lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:       w,
		title:   r.NewStyle().Bold(true),
		added:   r.NewStyle().Foreground(lipgloss.Color("2")),
		removed: r.NewStyle().Foreground(lipgloss.Color("1")),
		hunk:    r.NewStyle().Foreground(lipgloss.Color("6")),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		bad:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		dim:     r.NewStyle().Faint(true),
	}
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *printer) statusStyle(st schemas.ResultStatus) lipgloss.Style {
	switch st {
	case schemas.ResultSuccess:
		return p.ok
	case schemas.ResultExhausted:
		return p.warn
	default:
		return p.bad
	}
}

func (p *printer) severityStyle(s schemas.Severity) lipgloss.Style {
	switch s {
	case schemas.SeverityError:
		return p.bad
	case schemas.SeverityWarn:
		return p.warn
	default:
		return p.dim
	}
}

// diff colors a unified diff line by line.
func (p *printer) diff(unified string) {
	for _, line := range strings.Split(strings.TrimRight(unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			p.println(p.title.Render(line))
		case strings.HasPrefix(line, "@@"):
			p.println(p.hunk.Render(line))
		case strings.HasPrefix(line, "+"):
			p.println(p.added.Render(line))
		case strings.HasPrefix(line, "-"):
			p.println(p.removed.Render(line))
		default:
			p.println(line)
		}
	}
}

func (p *printer) findings(findings []schemas.Finding) {
	if len(findings) == 0 {
		p.println(p.dim.Render("No findings."))
		return
	}
	for _, f := range findings {
		sev := p.severityStyle(f.Severity).Render(fmt.Sprintf("%-5s", f.Severity))
		p.println(fmt.Sprintf("  %s %4d:%-3d %-14s %s", sev, f.Location.Line, f.Location.Column, f.Rule, f.Message))
	}
}

func (p *printer) attempts(attempts []schemas.Attempt) {
	for _, a := range attempts {
		line := fmt.Sprintf("  #%d %-18s %s", a.Ordinal, a.Status, a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond))
		if a.Error != "" {
			line += "  " + p.dim.Render(a.Error)
		}
		p.println(line)
	}
}

// result prints one finished repair session.
func (p *printer) result(r *schemas.Result, showDiff bool) {
	p.println(fmt.Sprintf("%s %s  %s",
		p.title.Render("==>"),
		p.title.Render(r.Path),
		p.statusStyle(r.Status).Render(strings.ToUpper(string(r.Status))),
	))
	p.println(p.dim.Render(fmt.Sprintf("session %s, %d attempt(s), %d finding(s)", r.SessionID, r.AttemptCount(), len(r.Findings))))
	p.attempts(r.Attempts)
	if showDiff && r.Diff != nil && r.Diff.Unified != "" {
		p.println("")
		p.diff(r.Diff.Unified)
	}
	p.println("")
	p.println(r.Explanation)
	if r.Status != schemas.ResultSuccess && r.FinalTestOutput != "" {
		p.println("")
		p.println(p.title.Render("Last test output:"))
		p.println(tail(r.FinalTestOutput, 20))
	}
	p.println("")
}

// report prints a detector report.
func (p *printer) report(path string, rep *detector.Report) {
	p.println(fmt.Sprintf("%s %s  %s", p.title.Render("==>"), p.title.Render(path), p.dim.Render(string(rep.Language))))
	scoreStyle := p.ok
	switch {
	case rep.Score < 50:
		scoreStyle = p.bad
	case rep.Score < 80:
		scoreStyle = p.warn
	}
	p.println("Quality score: " + scoreStyle.Render(fmt.Sprintf("%d/100", rep.Score)))
	p.println("")
	p.println(p.title.Render("Findings"))
	p.findings(rep.Findings)
	if len(rep.Metrics) > 0 {
		p.println("")
		p.println(p.title.Render("Functions"))
		for _, m := range rep.Metrics {
			p.println(fmt.Sprintf("  %-28s line %-5d complexity %-3d length %-4d args %d", m.Name, m.Line, m.Complexity, m.Length, m.Args))
		}
	}
	if len(rep.Linters) > 0 {
		p.println("")
		p.println(p.title.Render("Linters"))
		for _, l := range rep.Linters {
			p.println(fmt.Sprintf("  %-8s %s", l.Tool, l.Status))
		}
	}
}

// review prints a Markdown review, styling headings, bullets and code fences.
func (p *printer) review(markdown string) {
	p.println(p.title.Render("Review"))
	inFence := false
	for _, line := range strings.Split(strings.TrimRight(markdown, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			inFence = !inFence
			p.println(p.dim.Render(line))
		case inFence:
			p.println(p.hunk.Render(line))
		case strings.HasPrefix(trimmed, "#"):
			p.println(p.title.Render(strings.TrimSpace(strings.TrimLeft(trimmed, "#"))))
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			p.println("  " + p.warn.Render("•") + " " + strings.TrimSpace(trimmed[2:]))
		default:
			p.println(line)
		}
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
