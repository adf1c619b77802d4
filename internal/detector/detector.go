package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// ruleSet inspects a parsed tree for one language.
type ruleSet interface {
	Language() Language
	Inspect(in *inspection)
}

// Report is the full outcome of analyzing one source.
type Report struct {
	Language Language          `json:"language" yaml:"language"`
	Findings []schemas.Finding `json:"findings" yaml:"findings"`
	Metrics  []FunctionMetric  `json:"metrics" yaml:"metrics"`
	Score    int               `json:"score" yaml:"score"`
	Linters  []LinterResult    `json:"linters,omitempty" yaml:"linters,omitempty"`
}

// Detector runs the tree-sitter rule engine and, when configured, external
// linters over a source unit. It holds no per-call state and is safe for
// concurrent use.
type Detector struct {
	logger     *zap.Logger
	timeout    time.Duration
	limits     Thresholds
	rules      map[Language]ruleSet
	linters    []Linter
	linterWait time.Duration
}

// Option is a function that configures a Detector.
type Option func(*Detector)

// WithLinters replaces the configured external linters.
func WithLinters(linters ...Linter) Option {
	return func(d *Detector) {
		d.linters = linters
	}
}

// WithThresholds overrides the function metric limits.
func WithThresholds(t Thresholds) Option {
	return func(d *Detector) {
		d.limits = t
	}
}

// NewDetector builds a Detector with the rule sets for every supported language.
func NewDetector(cfg config.DetectorConfig, logger *zap.Logger, opts ...Option) *Detector {
	d := &Detector{
		logger:     logger.Named("detector"),
		timeout:    cfg.Timeout,
		limits:     DefaultThresholds,
		linterWait: cfg.LinterTimeout,
		rules: map[Language]ruleSet{
			LangPython:     pythonRules{},
			LangGo:         goRules{},
			LangJavaScript: jsRules{},
		},
	}
	if cfg.MaxComplexity > 0 {
		d.limits.MaxComplexity = cfg.MaxComplexity
	}
	if cfg.MaxArgs > 0 {
		d.limits.MaxArgs = cfg.MaxArgs
	}
	if cfg.MaxFunctionLines > 0 {
		d.limits.MaxFunctionLines = cfg.MaxFunctionLines
	}
	if d.linterWait <= 0 {
		d.linterWait = defaultLinterTimeout
	}
	for _, name := range cfg.Linters {
		if l, ok := builtinLinters[name]; ok {
			d.linters = append(d.linters, l)
		} else {
			d.logger.Warn("Ignoring unknown linter", zap.String("linter", name))
		}
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the findings for content ordered by position.
func (d *Detector) Detect(ctx context.Context, path, language, content string) ([]schemas.Finding, error) {
	report, err := d.Analyze(ctx, path, language, content)
	if err != nil {
		return nil, err
	}
	findings := append([]schemas.Finding(nil), report.Findings...)
	for _, lr := range report.Linters {
		findings = append(findings, lr.Findings...)
	}
	sortFindings(findings)
	return findings, nil
}

// Analyze runs the rule engine and linters and scores the result.
func (d *Detector) Analyze(ctx context.Context, path, language, content string) (report *Report, err error) {
	if content == "" {
		return nil, ErrEmptySource
	}
	lang, err := ResolveLanguage(language, path)
	if err != nil {
		return nil, err
	}
	rules, ok := d.rules[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Rule engine panicked", zap.String("path", path), zap.Any("panic", r))
			report, err = nil, fmt.Errorf("%w: rule engine panic: %v", ErrDetectorUnavailable, r)
		}
	}()

	in, tree, err := d.parse(ctx, lang, []byte(content))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if !in.checkSyntax() {
		rules.Inspect(in)
	}
	sortFindings(in.findings)

	report = &Report{
		Language: lang,
		Findings: in.findings,
		Metrics:  in.metrics,
		Score:    Score(in.findings, in.metrics),
	}
	if len(d.linters) > 0 {
		report.Linters = d.runLinters(ctx, lang, path, content)
	}

	d.logger.Debug("Analysis complete",
		zap.String("path", path),
		zap.String("language", string(lang)),
		zap.Int("findings", len(report.Findings)),
		zap.Int("score", report.Score),
	)
	return report, nil
}

// CheckSyntax returns an error describing the first syntax error in content,
// or nil when it parses cleanly.
func (d *Detector) CheckSyntax(ctx context.Context, language, content string) error {
	lang, err := ResolveLanguage(language, "")
	if err != nil {
		return err
	}
	in, tree, err := d.parse(ctx, lang, []byte(content))
	if err != nil {
		return err
	}
	defer tree.Close()

	if in.checkSyntax() {
		f := in.findings[0]
		return fmt.Errorf("line %d: %s", f.Location.Line, f.Message)
	}
	return nil
}

func (d *Detector) parse(ctx context.Context, lang Language, src []byte) (*inspection, *sitter.Tree, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammarFor(lang))

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tree-sitter failed to parse: %v", ErrDetectorUnavailable, err)
	}
	return &inspection{src: src, root: tree.RootNode(), limits: d.limits}, tree, nil
}

func sortFindings(findings []schemas.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i].Location, findings[j].Location
		if a.Line != b.Line || a.Column != b.Column {
			return a.Less(b)
		}
		return findings[i].Rule < findings[j].Rule
	})
}
