package quality

import (
	"fmt"

	"github.com/arloliu/sempress-lfs/convert"
)

// CompareFiles loads two table files and analyzes them.
//
// A file that cannot be read or parsed produces a report with a single
// CRITICAL comparison_failed issue and a similarity score of 0.
//
// Parameters:
//   - origPath: Path of the original table file
//   - reconPath: Path of the reconstructed table file
//
// Returns:
//   - *Report: Analysis of the two tables, or the comparison failure
func CompareFiles(origPath, reconPath string) *Report {
	original, err := convert.ReadTableFile(origPath)
	if err != nil {
		return comparisonFailed(err)
	}

	reconstructed, err := convert.ReadTableFile(reconPath)
	if err != nil {
		return comparisonFailed(err)
	}

	return Analyze(original, reconstructed)
}

func comparisonFailed(err error) *Report {
	r := newReport()
	r.add(Issue{
		Kind:        KindComparisonFailed,
		Message:     fmt.Sprintf("Failed to compare files: %v", err),
		Remediation: "Ensure both files are valid tables in a supported format.",
	})

	return r
}
