// internal/autofix/orchestrator.go
package autofix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/detector"
	"github.com/xkilldash9x/codedoc/internal/observability"
	"github.com/xkilldash9x/codedoc/internal/oracle"
)

// Dependencies are the components a session drives. Syntax may be nil.
type Dependencies struct {
	Detector IssueDetector
	Syntax   SyntaxChecker
	LLM      schemas.LLMClient
	Oracle   TestOracle
	Composer DiffComposer
}

// Orchestrator runs the repair loop for one session at a time. It holds no
// per-session state and can drive many sessions concurrently.
type Orchestrator struct {
	cfg        config.RepairConfig
	logger     *zap.Logger
	detector   IssueDetector
	syntax     SyntaxChecker
	llm        schemas.LLMClient
	oracle     TestOracle
	composer   DiffComposer
	prompts    *PromptBuilder
	metrics    *observability.Metrics
	explainer  *Explainer
	newBackoff func() backoff.BackOff
	genOpts    schemas.GenerationOptions
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMetrics records session and attempt counters on m.
func WithMetrics(m *observability.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithBackoff replaces the wait policy applied after a failed generation.
func WithBackoff(newBackoff func() backoff.BackOff) OrchestratorOption {
	return func(o *Orchestrator) { o.newBackoff = newBackoff }
}

// WithExplainer asks the model for a prose explanation of accepted fixes.
func WithExplainer(e *Explainer) OrchestratorOption {
	return func(o *Orchestrator) { o.explainer = e }
}

// NewOrchestrator wires the repair loop to its components.
func NewOrchestrator(cfg config.RepairConfig, deps Dependencies, logger *zap.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if logger == nil || deps.Detector == nil || deps.LLM == nil || deps.Oracle == nil || deps.Composer == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		detector: deps.Detector,
		syntax:   deps.Syntax,
		llm:      deps.LLM,
		oracle:   deps.Oracle,
		composer: deps.Composer,
		prompts:  NewPromptBuilder(cfg.SystemPrompt, cfg.Feedback),
		genOpts: schemas.GenerationOptions{
			MaxTokens:     cfg.MaxTokens,
			Temperature:   schemas.Ptr(cfg.Temperature),
			StopSequences: cfg.StopSequences,
			Timeout:       cfg.InferenceTimeout,
		},
	}
	o.newBackoff = func() backoff.BackOff { return defaultBackoff(cfg.Backoff) }
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func defaultBackoff(cfg config.BackoffConfig) backoff.BackOff {
	if cfg.Initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Initial
	if cfg.Max > 0 {
		b.MaxInterval = cfg.Max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run drives s to a terminal state and returns its Result. Cancelling ctx
// aborts the session; an attempt in flight at that moment is discarded.
func (o *Orchestrator) Run(ctx context.Context, s *Session) *schemas.Result {
	logger := o.logger.With(zap.String("session_id", s.ID), zap.String("path", s.Unit.Path))
	o.metrics.SessionStarted()
	logger.Info("Repair session started.", zap.Int("max_attempts", s.Budget.MaxAttempts))

	if ctx.Err() != nil {
		return o.finish(ctx, s, StateAborted, nil, logger)
	}

	findings, err := o.detector.Detect(ctx, s.Unit.Path, s.Unit.Language, s.Unit.Content)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, s, StateAborted, nil, logger)
		}
		// Repair still makes sense without findings; the tests decide.
		logger.Warn("Issue detection failed, continuing without findings.", zap.Error(err))
		findings = nil
	}
	s.setFindings(findings)
	o.metrics.FindingsSeeded(findings)
	logger.Debug("Findings seeded.", zap.Int("count", len(findings)))

	s.setState(StateAttempting)
	bo := o.newBackoff()

	var (
		prev        *schemas.Attempt
		lastVerdict *schemas.TestVerdict
	)
	for {
		if ctx.Err() != nil {
			return o.finish(ctx, s, StateAborted, lastVerdict, logger)
		}
		ordinal := s.nextOrdinal()
		if ordinal > s.Budget.MaxAttempts {
			return o.finish(ctx, s, StateExhausted, lastVerdict, logger)
		}

		working := s.Working()
		att, candidate := o.attempt(ctx, s, ordinal, working, findings, prev)
		if ctx.Err() != nil {
			logger.Info("Session cancelled during attempt, discarding its output.", zap.Int("ordinal", ordinal))
			return o.finish(ctx, s, StateAborted, lastVerdict, logger)
		}
		if err := s.appendAttempt(att); err != nil {
			logger.Error("Attempt rejected by session.", zap.Error(err))
			return o.finish(ctx, s, StateExhausted, lastVerdict, logger)
		}
		o.metrics.AttemptFinished(att.Status)
		if att.Verdict != nil {
			lastVerdict = att.Verdict
		}

		attemptLog := logger.With(zap.Int("ordinal", ordinal), zap.String("status", string(att.Status)))
		if att.Error != "" {
			attemptLog = attemptLog.With(zap.String("error", att.Error))
		}
		attemptLog.Info("Attempt finished.", zap.Duration("duration", att.FinishedAt.Sub(att.StartedAt)))

		if att.Status == schemas.AttemptAccepted {
			s.accept(candidate)
			return o.finish(ctx, s, StateAccepted, lastVerdict, logger)
		}
		prev = &att

		if att.Status == schemas.AttemptGenerationFailed && ordinal < s.Budget.MaxAttempts {
			if !o.wait(ctx, bo) {
				return o.finish(ctx, s, StateAborted, lastVerdict, logger)
			}
		}
	}
}

// attempt performs one generate, parse, test cycle against working. The
// returned candidate is only meaningful when the attempt was accepted.
//
// Cancelling ctx does not interrupt a backend call in flight. The call runs
// to completion or to the attempt deadline, and cancellation is checked
// between steps; Run then discards the attempt.
func (o *Orchestrator) attempt(ctx context.Context, s *Session, ordinal int, working string, findings []schemas.Finding, prev *schemas.Attempt) (schemas.Attempt, string) {
	att := schemas.Attempt{Ordinal: ordinal, StartedAt: time.Now().UTC()}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Budget.AttemptTimeout)
	defer cancel()

	att.Prompt = o.prompts.Build(s.Unit, fenceTag(s.Unit), working, findings, prev)
	req := schemas.GenerationRequest{
		SystemPrompt: o.prompts.SystemPrompt(),
		UserPrompt:   att.Prompt,
		Tier:         schemas.TierPowerful,
		Options:      o.genOpts,
	}

	start := time.Now()
	raw, err := o.llm.Generate(callCtx, req)
	o.metrics.ObserveInference(time.Since(start))
	if err != nil {
		att.Status = schemas.AttemptGenerationFailed
		att.Error = err.Error()
		att.FinishedAt = time.Now().UTC()
		return att, ""
	}
	att.RawOutput = raw
	if ctx.Err() != nil {
		att.Error = ctx.Err().Error()
		att.FinishedAt = time.Now().UTC()
		return att, ""
	}

	candidate, err := o.parseCandidate(callCtx, s.Unit, working, raw)
	if err != nil {
		att.Status = schemas.AttemptParseFailed
		att.Error = err.Error()
		att.FinishedAt = time.Now().UTC()
		return att, ""
	}
	att.Candidate = &candidate
	if ctx.Err() != nil {
		att.Error = ctx.Err().Error()
		att.FinishedAt = time.Now().UTC()
		return att, ""
	}

	verdict, err := o.oracle.Run(callCtx, oracle.Tree{
		Root:     s.Unit.ProjectRoot,
		Path:     s.Unit.Path,
		Language: s.Unit.Language,
		Content:  candidate,
	})
	att.FinishedAt = time.Now().UTC()
	if err != nil {
		// The harness itself failed; the candidate is not known to pass.
		att.Status = schemas.AttemptRejectedByTests
		att.Error = err.Error()
		return att, ""
	}
	att.Verdict = &verdict
	if !verdict.Pass {
		att.Status = schemas.AttemptRejectedByTests
		return att, ""
	}
	att.Status = schemas.AttemptAccepted
	return att, candidate
}

// wait sleeps for the next backoff interval. It reports false if ctx ended first.
func (o *Orchestrator) wait(ctx context.Context, bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// finish builds the Result for terminal state st and sets it on s.
func (o *Orchestrator) finish(ctx context.Context, s *Session, st State, last *schemas.TestVerdict, logger *zap.Logger) *schemas.Result {
	attempts := s.Attempts()
	r := &schemas.Result{
		SessionID: s.ID,
		Path:      s.Unit.Path,
		Findings:  s.Findings(),
		Attempts:  attempts,
		StartedAt: s.StartedAt,
	}
	if r.Findings == nil {
		r.Findings = []schemas.Finding{}
	}
	if r.Attempts == nil {
		r.Attempts = []schemas.Attempt{}
	}
	if last != nil {
		r.FinalTestOutput = last.Output()
	}

	switch st {
	case StateAccepted:
		r.Status = schemas.ResultSuccess
		candidate := s.Working()
		r.Candidate = &candidate
		r.Diff = o.composer.Compose(s.Unit.Path, s.Unit.Content, candidate)
		r.Explanation = o.explain(ctx, s, r, logger)
	case StateExhausted:
		r.Status = schemas.ResultExhausted
		r.Diff = nil
		r.Explanation = fmt.Sprintf("No candidate passed the tests within %d attempts. The original content is unchanged.", len(attempts))
	default:
		st = StateAborted
		r.Status = schemas.ResultAborted
		r.Diff = nil
		r.Explanation = fmt.Sprintf("The session was cancelled after %d attempts. The original content is unchanged.", len(attempts))
	}
	r.FinishedAt = time.Now().UTC()

	if existing := s.Result(); existing != nil {
		return existing
	}
	o.metrics.SessionFinished(r.Status)
	logger.Info("Repair session finished.",
		zap.String("status", string(r.Status)),
		zap.Int("attempts", len(attempts)),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	)
	if !s.finish(r, st) {
		return s.Result()
	}
	return r
}

func (o *Orchestrator) explain(ctx context.Context, s *Session, r *schemas.Result, logger *zap.Logger) string {
	summary := o.composer.Summarize(r.Diff, r.Findings).Text
	if o.explainer == nil || r.Diff.Empty() {
		return summary
	}
	text, err := o.explainer.Explain(ctx, s.Unit, r.Diff, r.Findings)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("Could not generate an explanation, using the diff summary.", zap.Error(err))
		}
		return summary
	}
	return text + "\n\n" + summary
}

// fenceTag is the code fence language used in prompts.
func fenceTag(unit SourceUnit) string {
	if lang, err := detector.ResolveLanguage(unit.Language, unit.Path); err == nil {
		return string(lang)
	}
	return unit.Language
}
