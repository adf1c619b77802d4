package detector

import "github.com/xkilldash9x/codedoc/api/schemas"

// Score rates a source from 0 to 100. Each finding costs its severity weight,
// and every function is penalized for high complexity, length and arity.
func Score(findings []schemas.Finding, metrics []FunctionMetric) int {
	score := 100
	for _, f := range findings {
		score -= f.Severity.Weight()
	}
	for _, m := range metrics {
		if m.Complexity > 10 {
			score -= (m.Complexity - 10) * 2
		}
		if m.Length > 50 {
			score -= 2
		}
		if m.Args > 5 {
			score -= 3
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
