// Package report renders a quality.Report for people and for machines.
package report

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/quality"
)

const ruleWidth = 60

// Options controls the text rendering.
type Options struct {
	// Verbose adds warning details, informational notes and per-column metrics.
	Verbose bool
}

// Blocking reports whether r must fail the quality check: it holds a
// CRITICAL or ERROR issue.
func Blocking(r *quality.Report) bool {
	return r.HasCriticalIssues() || r.HasErrors()
}

// Verdict returns the one-line summary for a similarity score.
func Verdict(score float64) string {
	switch {
	case score == 100:
		return "✓ Perfect reconstruction - all data preserved exactly!"
	case score >= 99.9:
		return "✓ Excellent quality - virtually lossless"
	case score >= 99:
		return "⚠ Good quality - minor variations detected"
	case score >= 95:
		return "⚠ Acceptable quality - some variations detected"
	default:
		return "✗ Poor quality - significant variations detected"
	}
}

// Render writes the human-readable report.
//
// Parameters:
//   - w: Destination
//   - r: Report to render
//   - opts: Rendering options
//
// Returns:
//   - error: Write error from w
func Render(w io.Writer, r *quality.Report, opts Options) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}
	rule := strings.Repeat("=", ruleWidth)

	p("\n%s", rule)
	p("SEMPRESS QUALITY REPORT")
	p("%s", rule)

	p("\nOverall Similarity: %.2f%%", r.SimilarityScore)
	p("%s", Verdict(r.SimilarityScore))

	if r.HasCriticalIssues() {
		p("\nCRITICAL ISSUES:")
		for _, issue := range bySeverity(r.Issues, quality.SeverityCritical) {
			p("  ✗ %s", issue.Message)
			p("    Fix: %s", issue.Remediation)
		}
	}

	if r.HasErrors() {
		p("\nERRORS:")
		for _, issue := range bySeverity(r.Issues, quality.SeverityError) {
			p("  ✗ %s", issue.Message)
			if issue.Example != nil {
				p("    Example: %s", issue.Example)
			}
			p("    Fix: %s", issue.Remediation)
		}
	}

	if r.HasWarnings() {
		p("\nWARNINGS:")
		for _, warning := range r.Warnings {
			p("  ⚠ %s", warning.Message)
			if opts.Verbose && warning.Details != "" {
				p("    %s", warning.Details)
			}
			p("    %s", warning.Remediation)
		}
	}

	if opts.Verbose && len(r.Notes) > 0 {
		p("\nNOTES:")
		for _, note := range r.Notes {
			p("  ✓ %s", note.Message)
			if note.Details != "" {
				p("    %s", note.Details)
			}
		}
	}

	if opts.Verbose && !r.HasCriticalIssues() && len(r.Columns) > 0 {
		p("\nCOLUMN DETAILS:")
		for _, name := range slices.Sorted(maps.Keys(r.Columns)) {
			p("  %s", columnLine(name, r.Columns[name]))
		}
	}

	if r.HasErrors() || r.HasWarnings() {
		p("\nRECOMMENDATIONS:")
		p("  1. Edit .sempress.yml in your repository")
		p("  2. Add problematic columns to lock_cols or residual_cols")
		p("  3. Commit the updated config")
		p("  4. Re-compress your files")
		p("\nExample .sempress.yml:")
		p("  compression:")
		p("    lock_cols:")
		for _, col := range recommendedColumns(r, quality.KindStringMismatch, quality.KindNullMismatch, quality.KindHighError) {
			p("      - %s", col)
		}
		p("    residual_cols:")
		for _, col := range recommendedColumns(r, quality.KindModerateError, quality.KindMinorError) {
			p("      - %s", col)
		}
	}

	p("\n%s\n", rule)

	return bw.Flush()
}

// RenderJSON writes r as indented JSON, adding the derived flags.
func RenderJSON(w io.Writer, r *quality.Report) error {
	out := struct {
		*quality.Report
		HasCriticalIssues bool `json:"has_critical_issues"`
		HasErrors         bool `json:"has_errors"`
		HasWarnings       bool `json:"has_warnings"`
	}{
		Report:            r,
		HasCriticalIssues: r.HasCriticalIssues(),
		HasErrors:         r.HasErrors(),
		HasWarnings:       r.HasWarnings(),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	_, err = w.Write(data)

	return err
}

func bySeverity(issues []quality.Issue, s quality.Severity) []quality.Issue {
	var out []quality.Issue
	for _, issue := range issues {
		if issue.Severity == s {
			out = append(out, issue)
		}
	}

	return out
}

func columnLine(name string, m quality.ColumnMetric) string {
	switch {
	case m.Type == format.ColumnString && m.String != nil:
		if m.String.MatchPct == 100 {
			return fmt.Sprintf("✓ %s (string): 100%% exact match", name)
		}

		return fmt.Sprintf("✗ %s (string): %.2f%% match, %s of %s rows",
			name, m.String.MatchPct, humanize.Comma(int64(m.String.MatchCount)), humanize.Comma(int64(m.String.TotalCount)))
	case m.Numeric != nil:
		n := m.Numeric
		switch {
		case n.ExactMatchPct == 100:
			return fmt.Sprintf("✓ %s (numeric): 100%% exact match", name)
		case n.RelativeErrorPct < quality.MinorErrorPct && n.NullMismatches == 0:
			return fmt.Sprintf("✓ %s (numeric): %.4f%% error, %.1f%% exact", name, n.RelativeErrorPct, n.ExactMatchPct)
		default:
			return fmt.Sprintf("⚠ %s (numeric): %.4f%% error, %.1f%% exact", name, n.RelativeErrorPct, n.ExactMatchPct)
		}
	default:
		return fmt.Sprintf("? %s", name)
	}
}

// recommendedColumns lists the columns with findings of the given kinds, or
// the example columns when there are none.
func recommendedColumns(r *quality.Report, kinds ...quality.Kind) []string {
	var cols []string
	for _, issue := range slices.Concat(r.Issues, r.Warnings) {
		if issue.Column != "" && slices.Contains(kinds, issue.Kind) && !slices.Contains(cols, issue.Column) {
			cols = append(cols, issue.Column)
		}
	}
	if len(cols) > 0 {
		slices.Sort(cols)
		return cols
	}

	if slices.Contains(kinds, quality.KindStringMismatch) {
		return []string{"id", "timestamp"}
	}

	return []string{"amount", "price"}
}
