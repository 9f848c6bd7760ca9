package quality

import (
	"fmt"

	"github.com/arloliu/sempress-lfs/format"
)

// Example is one concrete differing cell.
type Example struct {
	Row           int    `json:"row"`
	Original      string `json:"original"`
	Reconstructed string `json:"reconstructed"`
}

func (e Example) String() string {
	return fmt.Sprintf("Row %d: '%s' -> '%s'", e.Row, e.Original, e.Reconstructed)
}

// Issue is a single finding of the analysis.
type Issue struct {
	Severity    Severity `json:"severity"`
	Kind        Kind     `json:"type"`
	Column      string   `json:"column,omitempty"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Remediation string   `json:"fix"`
	Example     *Example `json:"example,omitempty"`
}

// StringMetric summarizes an exactly compared column.
type StringMetric struct {
	MatchCount int     `json:"match_count"`
	TotalCount int     `json:"total_count"`
	MatchPct   float64 `json:"match_pct"`
}

// NumericMetric summarizes the approximation error of a numeric column.
//
// Error statistics cover rows where both sides hold finite values; rows with
// a missing or non-finite value on exactly one side are counted in
// NullMismatches instead.
type NumericMetric struct {
	MAE              float64 `json:"mae"`
	RMSE             float64 `json:"rmse"`
	MaxAbsError      float64 `json:"max_error"`
	RelativeErrorPct float64 `json:"relative_error"`
	ExactMatchPct    float64 `json:"exact_match_pct"`
	NullMismatches   int     `json:"null_mismatches"`
}

// ColumnMetric holds the metric of one column; exactly one of String or
// Numeric is set, according to Type.
type ColumnMetric struct {
	Type    format.ColumnType `json:"type"`
	String  *StringMetric     `json:"string,omitempty"`
	Numeric *NumericMetric    `json:"numeric,omitempty"`
}

// Report is the result of comparing an original table with its reconstruction.
type Report struct {
	// SimilarityScore is the percentage of matching cells, in [0, 100].
	SimilarityScore float64 `json:"similarity_score"`
	// Scored is false when a structural mismatch stopped the analysis early.
	Scored bool `json:"scored"`
	// Issues holds CRITICAL and ERROR findings.
	Issues []Issue `json:"issues"`
	// Warnings holds INFO and WARNING precision findings.
	Warnings []Issue `json:"warnings"`
	// Notes holds informational findings that are not warnings.
	Notes   []Issue                 `json:"notes"`
	Columns map[string]ColumnMetric `json:"column_metrics"`
}

func newReport() *Report {
	return &Report{
		Issues:   []Issue{},
		Warnings: []Issue{},
		Notes:    []Issue{},
		Columns:  map[string]ColumnMetric{},
	}
}

// HasCriticalIssues reports whether any issue is CRITICAL.
func (r *Report) HasCriticalIssues() bool {
	return r.hasSeverity(SeverityCritical)
}

// HasErrors reports whether any issue is ERROR.
func (r *Report) HasErrors() bool {
	return r.hasSeverity(SeverityError)
}

// HasWarnings reports whether any warning was recorded.
func (r *Report) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Blocking reports whether the reconstruction must not be trusted: any
// CRITICAL or ERROR issue.
func (r *Report) Blocking() bool {
	return r.HasCriticalIssues() || r.HasErrors()
}

func (r *Report) hasSeverity(s Severity) bool {
	for _, issue := range r.Issues {
		if issue.Severity == s {
			return true
		}
	}

	return false
}

// add files issue under Issues, Warnings or Notes according to its kind.
func (r *Report) add(issue Issue) {
	issue.Severity = SeverityForKind(issue.Kind)
	switch {
	case issue.Kind == KindExcellentQuality:
		r.Notes = append(r.Notes, issue)
	case issue.Severity >= SeverityError:
		r.Issues = append(r.Issues, issue)
	default:
		r.Warnings = append(r.Warnings, issue)
	}
}
