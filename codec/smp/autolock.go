package smp

import (
	"math"
	"strings"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/table"
)

// autoLockDistinctRatio is the share of distinct values above which an
// integral column is treated as an identifier.
const autoLockDistinctRatio = 0.9

var (
	lockedNames    = []string{"id", "uuid", "guid", "timestamp", "datetime", "date", "time"}
	lockedSuffixes = []string{"_id", "_uuid", "_at", "_ts", "_time", "_date", "_timestamp"}
)

// shouldAutoLock reports whether a numeric column looks like an identifier or
// a time value and must therefore be stored losslessly.
func shouldAutoLock(col *table.Column) bool {
	if col.Type != format.ColumnNumeric {
		return false
	}
	if isIdentifierName(col.Name) {
		return true
	}

	return col.Integral && distinctRatio(col.Floats) >= autoLockDistinctRatio
}

func isIdentifierName(name string) bool {
	if strings.HasSuffix(name, "Id") || strings.HasSuffix(name, "ID") {
		return true
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	for _, n := range lockedNames {
		if lower == n {
			return true
		}
	}
	for _, s := range lockedSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}

	return false
}

func distinctRatio(values []float64) float64 {
	seen := make(map[float64]struct{}, len(values))
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		seen[v] = struct{}{}
		n++
	}
	if n == 0 {
		return 0
	}

	return float64(len(seen)) / float64(n)
}
