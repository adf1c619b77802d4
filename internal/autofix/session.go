// internal/autofix/session.go
package autofix

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/detector"
)

var (
	// ErrSessionNotFound is returned for handles the manager does not know.
	ErrSessionNotFound = errors.New("session not found")
	// ErrManagerClosed is returned by StartSession after Shutdown.
	ErrManagerClosed = errors.New("session manager is shut down")
)

const archiveTimeout = 10 * time.Second

// DefaultRetainFinished is how many finished sessions stay queryable.
const DefaultRetainFinished = 128

// SessionHandle identifies a session started by a Manager.
type SessionHandle struct {
	ID string
}

type managedSession struct {
	session *Session
	cancel  context.CancelFunc
}

// Manager starts repair sessions, one goroutine each, and tracks them until
// shutdown.
type Manager struct {
	logger *zap.Logger
	orch   *Orchestrator
	store  schemas.SessionStore

	mu       sync.Mutex
	sessions map[string]*managedSession
	finished []string // oldest first
	retain   int
	closed   bool
	wg       sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithStore archives every finished Result in store.
func WithStore(store schemas.SessionStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithRetention keeps at most n finished sessions queryable by handle.
// Older ones are forgotten; their Results remain in the store.
func WithRetention(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.retain = n
		}
	}
}

// NewManager creates a session manager driving sessions with orch.
func NewManager(orch *Orchestrator, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:   logger.Named("sessions"),
		orch:     orch,
		sessions: make(map[string]*managedSession),
		retain:   DefaultRetainFinished,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSession validates the request and starts a session in the background.
// Cancelling ctx has the same effect as Cancel. Invalid requests fail with a
// *ValidationError and start nothing.
func (m *Manager) StartSession(ctx context.Context, unit SourceUnit, budget Budget) (SessionHandle, error) {
	if err := validateRequest(unit, budget); err != nil {
		return SessionHandle{}, err
	}
	if unit.ProjectRoot == "" {
		unit.ProjectRoot = filepath.Dir(unit.Path)
	}
	if lang, err := detector.ResolveLanguage(unit.Language, unit.Path); err == nil {
		unit.Language = string(lang)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return SessionHandle{}, ErrManagerClosed
	}
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(ctx)
	s := newSession(id, unit, budget)
	m.sessions[id] = &managedSession{session: s, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		r := m.orch.Run(sctx, s)
		m.archive(s, r)
		m.retire(id)
	}()
	return SessionHandle{ID: id}, nil
}

// Run starts a session and waits for its Result.
func (m *Manager) Run(ctx context.Context, unit SourceUnit, budget Budget) (*schemas.Result, error) {
	h, err := m.StartSession(ctx, unit, budget)
	if err != nil {
		return nil, err
	}
	// The session observes ctx itself, so waiting without it still returns.
	return m.AwaitResult(context.WithoutCancel(ctx), h)
}

// Cancel requests that the session stop. The session finishes as aborted
// unless it already reached a terminal state.
func (m *Manager) Cancel(h SessionHandle) error {
	ms, err := m.lookup(h)
	if err != nil {
		return err
	}
	ms.cancel()
	return nil
}

// AwaitResult blocks until the session has a Result or ctx is done.
func (m *Manager) AwaitResult(ctx context.Context, h SessionHandle) (*schemas.Result, error) {
	ms, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	select {
	case <-ms.session.Done():
		return ms.session.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AttemptHistory returns the attempts recorded so far, in ordinal order.
func (m *Manager) AttemptHistory(h SessionHandle) ([]schemas.Attempt, error) {
	ms, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	return ms.session.Attempts(), nil
}

// Session returns the live session behind h.
func (m *Manager) Session(h SessionHandle) (*Session, error) {
	ms, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	return ms.session, nil
}

// Shutdown cancels every running session and waits for them to finish or
// for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, ms := range m.sessions {
		ms.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(h SessionHandle) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[h.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, h.ID)
	}
	return ms, nil
}

// retire marks id finished and forgets the oldest finished sessions beyond
// the retention limit.
func (m *Manager) retire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, id)
	for len(m.finished) > m.retain {
		delete(m.sessions, m.finished[0])
		m.finished = m.finished[1:]
	}
}

func (m *Manager) archive(s *Session, r *schemas.Result) {
	if m.store == nil || r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	rec := schemas.SessionRecord{
		SessionID: s.ID,
		Path:      s.Unit.Path,
		Language:  s.Unit.Language,
		Result:    *r,
		CreatedAt: s.StartedAt,
	}
	if err := m.store.SaveResult(ctx, rec); err != nil {
		m.logger.Error("Failed to archive session result.", zap.String("session_id", s.ID), zap.Error(err))
	}
}
