// internal/autofix/models.go
package autofix

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SourceUnit is the file under repair. Content is the original text and is
// never modified; the session keeps its own working copy.
type SourceUnit struct {
	Path        string `json:"path" validate:"required"`
	Language    string `json:"language"`
	Content     string `json:"-" validate:"required"`
	ProjectRoot string `json:"project_root"`
}

// Budget bounds a session.
type Budget struct {
	MaxAttempts    int           `json:"max_attempts" validate:"min=1"`
	AttemptTimeout time.Duration `json:"attempt_timeout" validate:"gt=0"`
}

// ValidationError reports a contract violation detected before a session starts.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid repair request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validateRequest(unit SourceUnit, budget Budget) error {
	if err := validate.Struct(unit); err != nil {
		return &ValidationError{Err: err}
	}
	if err := validate.Struct(budget); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// State is the lifecycle position of a session.
type State string

const (
	StateSeeding    State = "seeding"
	StateAttempting State = "attempting"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
	StateAborted    State = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateExhausted || s == StateAborted
}

// Session is one repair run over one SourceUnit. All mutation goes through
// the orchestrator goroutine that owns it; readers get copies.
type Session struct {
	ID        string
	Unit      SourceUnit
	Budget    Budget
	StartedAt time.Time

	mu       sync.RWMutex
	state    State
	working  string
	findings []schemas.Finding
	attempts []schemas.Attempt
	result   *schemas.Result
	done     chan struct{}
}

func newSession(id string, unit SourceUnit, budget Budget) *Session {
	return &Session{
		ID:        id,
		Unit:      unit,
		Budget:    budget,
		StartedAt: time.Now().UTC(),
		state:     StateSeeding,
		working:   unit.Content,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Working returns the working content: the original until a candidate is accepted.
func (s *Session) Working() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working
}

// Findings returns the findings seeded at session start.
func (s *Session) Findings() []schemas.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schemas.Finding(nil), s.findings...)
}

// Attempts returns a copy of the attempt history in ordinal order.
func (s *Session) Attempts() []schemas.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schemas.Attempt(nil), s.attempts...)
}

// Result returns the final result, or nil while the session is running.
func (s *Session) Result() *schemas.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Done is closed once the result is set.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = st
}

func (s *Session) setFindings(findings []schemas.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = findings
}

// nextOrdinal is the ordinal the next attempt must carry.
func (s *Session) nextOrdinal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts) + 1
}

// appendAttempt records a finished attempt. Ordinals must be contiguous and
// within budget.
func (s *Session) appendAttempt(a schemas.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := len(s.attempts) + 1; a.Ordinal != want {
		return fmt.Errorf("attempt ordinal %d out of sequence, expected %d", a.Ordinal, want)
	}
	if a.Ordinal > s.Budget.MaxAttempts {
		return fmt.Errorf("attempt %d exceeds budget of %d", a.Ordinal, s.Budget.MaxAttempts)
	}
	s.attempts = append(s.attempts, a)
	return nil
}

// accept commits candidate as the working content.
func (s *Session) accept(candidate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = candidate
}

// finish sets the result exactly once and releases waiters. Later calls are
// ignored and report false.
func (s *Session) finish(r *schemas.Result, st State) bool {
	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		return false
	}
	s.result = r
	s.state = st
	s.mu.Unlock()
	close(s.done)
	return true
}
