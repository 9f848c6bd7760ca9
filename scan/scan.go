// Package scan estimates what compressing a repository's tabular files would save.
package scan

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/gate"
)

// StorageCostPerGBMonth is the LFS storage price used for cost estimates, in USD.
const StorageCostPerGBMonth = 0.023

const bytesPerGB = 1 << 30

// File is one candidate file.
type File struct {
	// Path is relative to the scanned root, with forward slashes.
	Path           string
	Kind           format.SourceKind
	Size           uint64
	EstimatedRatio float64
	EstimatedSize  uint64
}

// Summary aggregates the candidate files of a tree.
type Summary struct {
	// Files is sorted by size, largest first.
	Files         []File
	TotalSize     uint64
	EstimatedSize uint64
}

// Ratio is the overall estimated compression ratio.
func (s *Summary) Ratio() float64 {
	if s.EstimatedSize == 0 {
		return 0
	}

	return float64(s.TotalSize) / float64(s.EstimatedSize)
}

// SavingsPct is the estimated share of storage saved, in percent.
func (s *Summary) SavingsPct() float64 {
	if s.TotalSize == 0 {
		return 0
	}

	return float64(s.TotalSize-s.EstimatedSize) * 100 / float64(s.TotalSize)
}

// MonthlyCost returns the storage cost before and after compression.
func (s *Summary) MonthlyCost() (before, after float64) {
	return float64(s.TotalSize) / bytesPerGB * StorageCostPerGBMonth,
		float64(s.EstimatedSize) / bytesPerGB * StorageCostPerGBMonth
}

// Analyze walks root and collects every file of a supported kind. The .git
// directory is skipped. Unreadable entries are skipped as well.
//
// Parameters:
//   - root: Directory to scan
//
// Returns:
//   - *Summary: Candidate files with size estimates
//   - error: root itself cannot be walked
func Analyze(root string) (*Summary, error) {
	sum := &Summary{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}

			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}

			return nil
		}

		kind := format.DetectSourceKind(path)
		if kind == format.SourceUnknown || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		size := uint64(info.Size())
		ratio := gate.EstimateRatio(size)
		f := File{
			Path:           filepath.ToSlash(rel),
			Kind:           kind,
			Size:           size,
			EstimatedRatio: ratio,
			EstimatedSize:  uint64(float64(size) / ratio),
		}
		sum.Files = append(sum.Files, f)
		sum.TotalSize += f.Size
		sum.EstimatedSize += f.EstimatedSize

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	slices.SortStableFunc(sum.Files, func(a, b File) int {
		if c := cmp.Compare(b.Size, a.Size); c != 0 {
			return c
		}

		return cmp.Compare(a.Path, b.Path)
	})

	return sum, nil
}

// Write prints s for people, listing at most top files.
func (s *Summary) Write(w io.Writer, top int) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	if len(s.Files) == 0 {
		p("No tabular files found in repository")
		return bw.Flush()
	}

	p("Found %s tabular files:\n", humanize.Comma(int64(len(s.Files))))
	for _, f := range s.Files[:min(top, len(s.Files))] {
		p("  %s: %s (%s)", f.Path, humanize.IBytes(f.Size), f.Kind)
	}
	if len(s.Files) > top {
		p("  ... and %s more", humanize.Comma(int64(len(s.Files)-top)))
	}

	before, after := s.MonthlyCost()
	p("\nSummary:")
	p("  Total size: %s", humanize.IBytes(s.TotalSize))
	p("  Estimated compressed: %s", humanize.IBytes(s.EstimatedSize))
	p("  Estimated ratio: %.1fx", s.Ratio())
	p("  Potential savings: %.0f%%", s.SavingsPct())
	p("\nEstimated storage cost (LFS pricing):")
	p("  Current: $%.2f/month", before)
	p("  After compression: $%.2f/month", after)
	p("  Savings: $%.2f/month", before-after)

	return bw.Flush()
}
