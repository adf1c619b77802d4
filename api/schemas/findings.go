package schemas

// -- Finding Schemas --

// FindingKind classifies a static-analysis issue into one of a small, closed
// set of categories the repair prompt and the change summary understand.
type FindingKind string

const (
	KindStyle           FindingKind = "style"
	KindUnusedSymbol    FindingKind = "unused-symbol"
	KindComplexity      FindingKind = "complexity"
	KindCorrectnessRisk FindingKind = "correctness-risk"
	KindOther           FindingKind = "other"
)

// Severity represents how serious a finding is. Values are lowercase to align
// with the archive's TEXT columns.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Weight returns the number of points a finding of this severity costs in
// the quality score.
func (s Severity) Weight() int {
	switch s {
	case SeverityError:
		return 10
	case SeverityWarn:
		return 5
	default:
		return 2
	}
}

// Location is a 1-based line/column range inside a source unit. EndLine and
// EndColumn are zero when the backend only reports a point.
type Location struct {
	Line      int `json:"line" yaml:"line"`
	Column    int `json:"column" yaml:"column"`
	EndLine   int `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	EndColumn int `json:"end_column,omitempty" yaml:"end_column,omitempty"`
}

// Less orders locations by line, then column.
func (l Location) Less(other Location) bool {
	if l.Line != other.Line {
		return l.Line < other.Line
	}
	return l.Column < other.Column
}

// Finding is one normalized static-analysis issue reported against a source
// unit. Findings are immutable once produced.
type Finding struct {
	Kind     FindingKind `json:"kind" yaml:"kind"`
	Rule     string      `json:"rule" yaml:"rule"` // Originating rule code, e.g. NO_DOC.
	Location Location    `json:"location" yaml:"location"`
	Message  string      `json:"message" yaml:"message"`
	Severity Severity    `json:"severity" yaml:"severity"`
	Source   string      `json:"source,omitempty" yaml:"source,omitempty"` // Backend that produced it (treesitter, ruff, ...).
}
