package schemas

import (
	"time"
)

// -- Test Verdict --

// TestVerdict is the immutable outcome of running the project's tests
// against one candidate.
type TestVerdict struct {
	Pass     bool          `json:"pass" yaml:"pass"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stdout   string        `json:"stdout" yaml:"stdout"`
	Stderr   string        `json:"stderr" yaml:"stderr"`
	TimedOut bool          `json:"timed_out" yaml:"timed_out"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Output returns the combined captured output, stdout first.
func (v TestVerdict) Output() string {
	switch {
	case v.Stdout == "":
		return v.Stderr
	case v.Stderr == "":
		return v.Stdout
	default:
		return v.Stdout + "\n" + v.Stderr
	}
}

// -- Attempts --

// AttemptStatus is the terminal status of a single generate, apply, test cycle.
type AttemptStatus string

const (
	AttemptAccepted         AttemptStatus = "accepted"
	AttemptRejectedByTests  AttemptStatus = "rejected-by-tests"
	AttemptGenerationFailed AttemptStatus = "generation-failed"
	AttemptParseFailed      AttemptStatus = "parse-failed"
)

// Attempt records one repair cycle. Candidate is nil when generation or
// parsing failed; Verdict is nil when the tests were never reached.
type Attempt struct {
	Ordinal    int           `json:"ordinal" yaml:"ordinal"`
	Prompt     string        `json:"prompt" yaml:"prompt"`
	RawOutput  string        `json:"raw_output" yaml:"raw_output"`
	Candidate  *string       `json:"candidate,omitempty" yaml:"candidate,omitempty"`
	Verdict    *TestVerdict  `json:"verdict,omitempty" yaml:"verdict,omitempty"`
	Status     AttemptStatus `json:"status" yaml:"status"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
}

// -- Diff --

// HunkOp is the kind of edit a hunk performs on the original text.
type HunkOp string

const (
	HunkInsert  HunkOp = "insert"
	HunkDelete  HunkOp = "delete"
	HunkReplace HunkOp = "replace"
)

// Hunk is one contiguous line-level edit. OrigStart is the 1-based line in
// the original where the edit begins; for inserts it is the line the new
// lines are placed before (len+1 appends). NewStart is the matching 1-based
// line in the candidate.
type Hunk struct {
	Op        HunkOp   `json:"op" yaml:"op"`
	OrigStart int      `json:"orig_start" yaml:"orig_start"`
	OrigLines []string `json:"orig_lines,omitempty" yaml:"orig_lines,omitempty"`
	NewStart  int      `json:"new_start" yaml:"new_start"`
	NewLines  []string `json:"new_lines,omitempty" yaml:"new_lines,omitempty"`
}

// Diff is the composed change between an original and a candidate.
type Diff struct {
	Path    string `json:"path" yaml:"path"`
	Hunks   []Hunk `json:"hunks" yaml:"hunks"`
	Added   int    `json:"added" yaml:"added"`
	Removed int    `json:"removed" yaml:"removed"`
	Unified string `json:"unified,omitempty" yaml:"unified,omitempty"`
}

// Empty reports whether the diff contains no edits.
func (d *Diff) Empty() bool {
	return d == nil || len(d.Hunks) == 0
}

// -- Result --

// ResultStatus is the terminal status of a repair session.
type ResultStatus string

const (
	ResultSuccess   ResultStatus = "success"
	ResultExhausted ResultStatus = "exhausted"
	ResultAborted   ResultStatus = "aborted"
)

// Result is the terminal, immutable outcome delivered to the caller.
type Result struct {
	SessionID       string       `json:"session_id" yaml:"session_id"`
	Path            string       `json:"path" yaml:"path"`
	Status          ResultStatus `json:"status" yaml:"status"`
	Candidate       *string      `json:"candidate,omitempty" yaml:"candidate,omitempty"`
	Diff            *Diff        `json:"diff,omitempty" yaml:"diff,omitempty"` // Nil unless Status is success.
	Explanation     string       `json:"explanation" yaml:"explanation"`
	Findings        []Finding    `json:"findings" yaml:"findings"`
	Attempts        []Attempt    `json:"attempts" yaml:"attempts"`
	FinalTestOutput string       `json:"final_test_output" yaml:"final_test_output"`
	StartedAt       time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time    `json:"finished_at" yaml:"finished_at"`
}

// AttemptCount returns the number of attempts the session consumed.
func (r *Result) AttemptCount() int {
	return len(r.Attempts)
}

// -- Archive Records --

// SessionRecord is a Result as stored in the session archive.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	Language  string    `json:"language"`
	Result    Result    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is the lightweight listing row for archived sessions.
type SessionSummary struct {
	SessionID    string       `json:"session_id"`
	Path         string       `json:"path"`
	Status       ResultStatus `json:"status"`
	AttemptCount int          `json:"attempt_count"`
	CreatedAt    time.Time    `json:"created_at"`
}
