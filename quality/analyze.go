// Package quality measures how faithfully a reconstructed table matches its
// original.
//
// Analyze runs four stages: a shape check and a column-set check, either of
// which stops the analysis with a CRITICAL issue, then a per-column check and
// an overall similarity score. Findings are data, never errors: Analyze does
// not fail for any pair of tables.
package quality

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/table"
)

// nearMatchTolerance is the largest difference at which two numeric cells
// still count as matching for the similarity score.
const nearMatchTolerance = 1e-10

const (
	fixReportBug = "This should never happen. Please report it as a codec bug."
	fixMinor     = "Quality is good. If you need perfect precision, add to residual_cols."
)

// Analyze compares original with reconstructed.
//
// Columns are visited in sorted name order, so the report does not depend on
// column order. Analyze is deterministic and does not modify its inputs.
//
// Parameters:
//   - original: Table before compression
//   - reconstructed: Table after a compress and decompress round trip
//
// Returns:
//   - *Report: Findings, per-column metrics and the similarity score
func Analyze(original, reconstructed *table.Table) *Report {
	r := newReport()

	origRows, origCols := original.Shape()
	recRows, recCols := reconstructed.Shape()
	if origRows != recRows || origCols != recCols {
		r.add(Issue{
			Kind:        KindShapeMismatch,
			Message:     fmt.Sprintf("Shape changed: (%d, %d) -> (%d, %d)", origRows, origCols, recRows, recCols),
			Remediation: fixReportBug,
		})

		return r
	}

	recByName := make(map[string]*table.Column, recCols)
	for _, col := range reconstructed.Columns {
		recByName[col.Name] = col
	}

	missing, extra := diffNames(original.Names(), reconstructed.Names())
	if len(missing) > 0 || len(extra) > 0 {
		r.add(Issue{
			Kind:        KindColumnMismatch,
			Message:     fmt.Sprintf("Columns changed. Missing: %v, Extra: %v", missing, extra),
			Remediation: fixReportBug,
		})

		return r
	}

	names := original.Names()
	slices.Sort(names)

	matched := 0
	for _, name := range names {
		orig, _ := original.Column(name)
		matched += r.checkColumn(orig, recByName[name])
	}

	r.Scored = true
	r.SimilarityScore = 100
	if total := origRows * origCols; total > 0 {
		r.SimilarityScore = float64(matched) * 100 / float64(total)
	}

	return r
}

// diffNames returns the sorted names missing from rec and the sorted names
// only present in rec.
func diffNames(orig, rec []string) (missing, extra []string) {
	missing, extra = []string{}, []string{}
	for _, n := range orig {
		if !slices.Contains(rec, n) {
			missing = append(missing, n)
		}
	}
	for _, n := range rec {
		if !slices.Contains(orig, n) {
			extra = append(extra, n)
		}
	}
	slices.Sort(missing)
	slices.Sort(extra)

	return missing, extra
}

// checkColumn records the metric and findings of one column and returns its
// count of matching cells.
func (r *Report) checkColumn(orig, rec *table.Column) int {
	if orig.Type == format.ColumnNumeric && rec.Type == format.ColumnNumeric {
		return r.checkNumeric(orig.Name, orig.Floats, rec.Floats)
	}

	return r.checkText(orig, rec)
}

// checkText compares cells by exact equality of their canonical text. Columns
// whose type differs between the two sides are compared this way as well.
func (r *Report) checkText(orig, rec *table.Column) int {
	rows := orig.Len()
	matches := 0
	var example *Example
	for i := range rows {
		o, c := orig.Text(i), rec.Text(i)
		if o == c {
			matches++
			continue
		}
		if example == nil {
			example = &Example{Row: i, Original: o, Reconstructed: c}
		}
	}

	metric := &StringMetric{MatchCount: matches, TotalCount: rows, MatchPct: 100}
	if rows > 0 {
		metric.MatchPct = float64(matches) * 100 / float64(rows)
	}
	r.Columns[orig.Name] = ColumnMetric{Type: format.ColumnString, String: metric}

	if matches < rows {
		r.add(Issue{
			Kind:        KindStringMismatch,
			Column:      orig.Name,
			Message:     fmt.Sprintf("%s: %d values changed (%.2f%% preserved)", orig.Name, rows-matches, metric.MatchPct),
			Remediation: fmt.Sprintf("Add '%s' to lock_cols in .sempress.yml for lossless storage", orig.Name),
			Example:     example,
		})
	}

	return matches
}

// special reports whether v is missing or non-finite.
func special(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// sameValue reports whether two cells hold the same value, treating two NaNs as equal.
func sameValue(o, c float64) bool {
	return o == c || (math.IsNaN(o) && math.IsNaN(c))
}

// errorStats accumulates error metrics over finite value pairs. Means are
// kept as running means and the sum of squares is kept relative to the
// largest error seen, so the metrics stay finite for any finite input.
type errorStats struct {
	n        int
	meanAbs  float64
	meanOrig float64
	maxAbs   float64
	scale    float64
	scaledSq float64
}

func (s *errorStats) add(o, c float64) {
	diff := math.Abs(o - c)
	if math.IsInf(diff, 0) {
		diff = math.MaxFloat64
	}

	s.n++
	n := float64(s.n)
	s.meanAbs += (diff - s.meanAbs) / n
	s.meanOrig += (math.Abs(o) - s.meanOrig) / n
	s.maxAbs = max(s.maxAbs, diff)

	switch {
	case diff == 0:
	case diff > s.scale:
		ratio := s.scale / diff
		s.scaledSq = 1 + s.scaledSq*ratio*ratio
		s.scale = diff
	default:
		ratio := diff / s.scale
		s.scaledSq += ratio * ratio
	}
}

func (s *errorStats) rmse() float64 {
	if s.n == 0 {
		return 0
	}

	return s.scale * math.Sqrt(s.scaledSq/float64(s.n))
}

func (s *errorStats) relativePct() float64 {
	if s.meanOrig <= 0 {
		return 0
	}
	pct := s.meanAbs * 100 / s.meanOrig
	if math.IsInf(pct, 0) {
		pct = math.Min(s.meanAbs/s.meanOrig*100, math.MaxFloat64)
	}

	return pct
}

func (r *Report) checkNumeric(name string, orig, rec []float64) int {
	rows := len(orig)

	var (
		exact, near, nullMismatches int
		stats                       errorStats
		nullExample                 *Example
		differs                     bool
	)
	for i := range rows {
		o, c := orig[i], rec[i]
		if sameValue(o, c) {
			exact++
			near++
			if !special(o) {
				stats.add(o, o)
			}
			continue
		}

		if special(o) || special(c) {
			nullMismatches++
			if nullExample == nil {
				nullExample = &Example{Row: i, Original: table.FormatFloat(o), Reconstructed: table.FormatFloat(c)}
			}
			continue
		}

		differs = true
		if math.Abs(o-c) < nearMatchTolerance {
			near++
		}
		stats.add(o, c)
	}

	metric := &NumericMetric{ExactMatchPct: 100, NullMismatches: nullMismatches}
	if rows > 0 {
		metric.ExactMatchPct = float64(exact) * 100 / float64(rows)
	}
	if stats.n > 0 {
		metric.MAE = stats.meanAbs
		metric.RMSE = stats.rmse()
		metric.MaxAbsError = stats.maxAbs
		metric.RelativeErrorPct = stats.relativePct()
	}
	r.Columns[name] = ColumnMetric{Type: format.ColumnNumeric, Numeric: metric}

	if nullMismatches > 0 {
		r.add(Issue{
			Kind:        KindNullMismatch,
			Column:      name,
			Message:     fmt.Sprintf("%s: %d missing or non-finite values changed", name, nullMismatches),
			Remediation: fmt.Sprintf("Add '%s' to lock_cols in .sempress.yml for lossless storage", name),
			Example:     nullExample,
		})
	}
	if differs {
		r.add(precisionIssue(name, metric))
	}

	return near
}

// precisionIssue builds the tiered finding for a column with approximated values.
func precisionIssue(name string, m *NumericMetric) Issue {
	kind := kindForRelativeError(m.RelativeErrorPct)
	details := fmt.Sprintf("MAE: %.6f, Max error: %.6f", m.MAE, m.MaxAbsError)

	switch kind {
	case KindExcellentQuality:
		return Issue{
			Kind:    kind,
			Column:  name,
			Message: fmt.Sprintf("%s: Excellent quality (%.4f%% relative error)", name, m.RelativeErrorPct),
			Details: details,
		}
	case KindMinorError:
		return Issue{
			Kind:        kind,
			Column:      name,
			Message:     fmt.Sprintf("%s: Minor variations (%.4f%% relative error)", name, m.RelativeErrorPct),
			Details:     details,
			Remediation: fixMinor,
		}
	case KindModerateError:
		return Issue{
			Kind:        kind,
			Column:      name,
			Message:     fmt.Sprintf("%s: Noticeable variations (%.4f%% relative error)", name, m.RelativeErrorPct),
			Details:     details,
			Remediation: fmt.Sprintf("Add '%s' to residual_cols in .sempress.yml for higher precision.", name),
		}
	default:
		return Issue{
			Kind:        kind,
			Column:      name,
			Message:     fmt.Sprintf("%s: Significant variations (%.2f%% relative error)", name, m.RelativeErrorPct),
			Details:     details,
			Remediation: fmt.Sprintf("Add '%s' to residual_cols or lock_cols in .sempress.yml.", name),
		}
	}
}
