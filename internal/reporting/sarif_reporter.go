// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/reporting/sarif"
)

const (
	ToolName     = "codedoc"
	ToolInfoURI  = "https://github.com/xkilldash9x/codedoc"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

// ruleIDSanitizer keeps alphanumerics, underscore and dot. Everything else
// collapses to a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by its content.
type RuleFingerprint string

func calculateFingerprint(f schemas.Finding) RuleFingerprint {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", f.Source, f.Rule, f.Kind, f.Severity)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// SARIFReporter buffers findings and writes a single SARIF 2.1.0 log on
// Close. It is safe for concurrent use.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log

	mu                 sync.Mutex
	rulesByFingerprint map[RuleFingerprint]int // index into driver.Rules
	ruleIDUsage        map[string]int
}

// NewSARIFReporter creates a reporter that writes SARIF to writer.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						Rules:          []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}
	return &SARIFReporter{
		writer:             writer,
		logger:             logger.Named("sarif_reporter"),
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]int),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write converts the findings for path into SARIF results.
func (r *SARIFReporter) Write(path string, findings []schemas.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	uri := filepath.ToSlash(path)
	for _, f := range findings {
		idx := r.ensureRule(f)
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    run.Tool.Driver.Rules[idx].ID,
			RuleIndex: idx,
			Message:   &sarif.Message{Text: pString(f.Message)},
			Level:     mapSeverityToSARIFLevel(f.Severity),
			Locations: []*sarif.Location{createLocation(uri, f.Location)},
		})
	}
	if len(findings) > 0 {
		r.logger.Debug("Buffered findings", zap.String("path", path), zap.Int("count", len(findings)))
	}
	return nil
}

// Close encodes the log and closes the writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Debug("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(r.log)
	// The writer is closed even when encoding fails.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func sanitizeRuleName(name string) string {
	s := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if s == "" {
		return "UNNAMED"
	}
	return s
}

// ensureRule returns the index of the rule describing f, registering it on
// first sight. Two definitions that share an ID get numbered suffixes.
// Must be called with mu held.
func (r *SARIFReporter) ensureRule(f schemas.Finding) int {
	fp := calculateFingerprint(f)
	if idx, ok := r.rulesByFingerprint[fp]; ok {
		return idx
	}

	base := sanitizeRuleName(f.Rule)
	if f.Source != "" && f.Source != "treesitter" {
		base = sanitizeRuleName(f.Source) + "." + base
	}
	usage := r.ruleIDUsage[base]
	r.ruleIDUsage[base] = usage + 1
	id := base
	if usage > 0 {
		id = fmt.Sprintf("%s-%d", base, usage)
		r.logger.Debug("Rule ID collision, suffixed", zap.String("base_id", base), zap.String("final_id", id))
	}

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:                   id,
		Name:                 pString(f.Rule),
		ShortDescription:     &sarif.MultiformatMessageString{Text: pString(string(f.Kind))},
		DefaultConfiguration: &sarif.Configuration{Level: mapSeverityToSARIFLevel(f.Severity)},
		Properties: &sarif.PropertyBag{
			"tags": []string{string(f.Kind)},
		},
	})
	idx := len(driver.Rules) - 1
	r.rulesByFingerprint[fp] = idx
	return idx
}

func createLocation(uri string, loc schemas.Location) *sarif.Location {
	pl := &sarif.PhysicalLocation{ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri)}}
	if loc.Line > 0 {
		pl.Region = &sarif.Region{
			StartLine:   loc.Line,
			StartColumn: loc.Column,
			EndLine:     loc.EndLine,
			EndColumn:   loc.EndColumn,
		}
	}
	return &sarif.Location{PhysicalLocation: pl}
}

func mapSeverityToSARIFLevel(s schemas.Severity) sarif.Level {
	switch s {
	case schemas.SeverityError:
		return sarif.LevelError
	case schemas.SeverityWarn:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

func pString(s string) *string {
	return &s
}
