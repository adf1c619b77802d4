// Package coroner reads failing test output and recovers the source
// locations it points at, so a retry prompt can show the model the code
// around the failure.
package coroner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the output format a Location was recovered from.
type Kind string

const (
	KindGoTest  Kind = "go-test"
	KindGoPanic Kind = "go-panic"
	KindPython  Kind = "python"
	KindNode    Kind = "node"
)

// Location is one place in the source that failing output points at.
type Location struct {
	File     string
	Line     int
	Function string
	Message  string
	Kind     Kind
}

var (
	// Go panics: the message line, then function/location pairs.
	panicMessageRegex = regexp.MustCompile(`^\s*(?:panic: |fatal error: )(.*?)(?: \[recovered\])?$`)
	functionRegex     = regexp.MustCompile(`^([a-zA-Z0-9_\-./\(\)\*]+)\(.*\)$`)
	frameRegex        = regexp.MustCompile(`^\t(.*\.go):(\d+)(?: .*)?$`)

	// go test: "    calc_test.go:12: expected 3, got -1"
	goTestRegex = regexp.MustCompile(`^\s+([\w./-]+\.go):(\d+): (.*)$`)

	// Python tracebacks and pytest's short form.
	pyFrameRegex = regexp.MustCompile(`^\s*File "(.+?\.py)", line (\d+)(?:, in (\S+))?`)
	pyShortRegex = regexp.MustCompile(`^([\w./-]+\.py):(\d+): (.*)$`)
	pyErrorRegex = regexp.MustCompile(`^(?:E\s+)?([A-Za-z_][\w.]*(?:Error|Exception|Failed|Interrupt|Exit))\b:?\s*(.*)$`)

	// Node stack frames: "    at add (/app/src/calc.js:3:10)"
	nodeFrameRegex = regexp.MustCompile(`^\s+at (?:(.+?) \()?(.+?\.[cm]?[jt]s):(\d+):\d+\)?$`)
)

// Parser recovers source locations from test runner output. It is stateless
// and safe for concurrent use.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Locate scans output and returns every application location it mentions,
// in order of first appearance. Runtime, standard library and dependency
// frames are skipped.
func (p *Parser) Locate(output string) []Location {
	lines := strings.Split(output, "\n")
	var (
		locs      []Location
		seen      = make(map[string]struct{})
		panicMsg  string
		pendingPy []int
	)

	add := func(l Location) int {
		key := l.File + ":" + strconv.Itoa(l.Line)
		if _, ok := seen[key]; ok {
			return -1
		}
		seen[key] = struct{}{}
		locs = append(locs, l)
		return len(locs) - 1
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")

		if m := panicMessageRegex.FindStringSubmatch(line); m != nil {
			panicMsg = m[1]
			continue
		}

		if m := functionRegex.FindStringSubmatch(line); m != nil && i+1 < len(lines) {
			if fm := frameRegex.FindStringSubmatch(lines[i+1]); fm != nil {
				i++
				if isGoRuntimeFrame(m[1], fm[1]) {
					continue
				}
				add(Location{File: fm[1], Line: atoi(fm[2]), Function: m[1], Message: panicMsg, Kind: KindGoPanic})
				continue
			}
		}

		if m := goTestRegex.FindStringSubmatch(line); m != nil {
			add(Location{File: m[1], Line: atoi(m[2]), Message: m[3], Kind: KindGoTest})
			continue
		}

		if m := pyFrameRegex.FindStringSubmatch(line); m != nil {
			if isDependencyPath(m[1]) {
				continue
			}
			if idx := add(Location{File: m[1], Line: atoi(m[2]), Function: m[3], Kind: KindPython}); idx >= 0 {
				pendingPy = append(pendingPy, idx)
			}
			continue
		}

		if m := pyShortRegex.FindStringSubmatch(line); m != nil {
			add(Location{File: m[1], Line: atoi(m[2]), Message: m[3], Kind: KindPython})
			continue
		}

		if m := nodeFrameRegex.FindStringSubmatch(line); m != nil {
			if strings.HasPrefix(m[2], "node:") || isDependencyPath(m[2]) {
				continue
			}
			add(Location{File: m[2], Line: atoi(m[3]), Function: m[1], Kind: KindNode})
			continue
		}

		// The exception line closes a Python traceback.
		if len(pendingPy) > 0 && !strings.HasPrefix(line, " ") {
			if m := pyErrorRegex.FindStringSubmatch(line); m != nil {
				msg := strings.TrimSpace(m[1] + ": " + m[2])
				msg = strings.TrimSuffix(msg, ":")
				for _, idx := range pendingPy {
					locs[idx].Message = msg
				}
				pendingPy = nil
			}
		}
	}
	return locs
}

// Primary returns the first location that refers to path, or nil.
func Primary(locs []Location, path string) *Location {
	for i := range locs {
		if SamePath(locs[i].File, path) {
			return &locs[i]
		}
	}
	return nil
}

// SamePath reports whether a path printed by a test runner names the same
// file as path. Runners print absolute, module-relative or bare file names,
// so a suffix match on whole path elements is enough.
func SamePath(reported, path string) bool {
	a := filepath.ToSlash(filepath.Clean(reported))
	b := filepath.ToSlash(filepath.Clean(path))
	if a == b {
		return true
	}
	return strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}

func isGoRuntimeFrame(function, file string) bool {
	if strings.HasPrefix(function, "runtime.") || strings.HasPrefix(function, "testing.") || function == "panic" {
		return true
	}
	// Standard library paths have no dot in their package directory, module
	// paths (github.com/...) do.
	if strings.Contains(file, "/go/src/") && !strings.Contains(filepath.Dir(file), ".") {
		return true
	}
	return strings.Contains(file, "/pkg/mod/")
}

func isDependencyPath(file string) bool {
	for _, marker := range []string{"site-packages/", "dist-packages/", "node_modules/", "/lib/python"} {
		if strings.Contains(file, marker) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
