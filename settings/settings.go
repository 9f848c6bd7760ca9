// Package settings holds the immutable configuration record consumed by the
// compression gate, the codec and the smudge classifier.
//
// Settings are read from a .sempress.yml file discovered upward from the
// working tree. Every key is optional and merges over the built-in defaults;
// a missing, unreadable or invalid file never stops the filter, it only
// falls back to Default.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/arloliu/sempress-lfs/format"
)

const (
	// DefaultK is the default codebook size.
	DefaultK = 64
	// DefaultUncertaintyThreshold is the default exception threshold, relative to a codebook cell.
	DefaultUncertaintyThreshold = 0.2
	// DefaultMinSize is the smallest input the gate attempts to compress.
	DefaultMinSize = int64(datasize.MB)
	// DefaultMinCompressionRatio is the smallest ratio worth storing a blob for.
	DefaultMinCompressionRatio = 1.5
)

// DetectionPolicy selects how the smudge path recognizes compressed payloads.
type DetectionPolicy uint8

const (
	// DetectMagic treats a payload as compressed iff it starts with the blob magic.
	DetectMagic DetectionPolicy = 0x1
	// DetectSniff treats a payload as plain text when its first bytes look like CSV.
	DetectSniff DetectionPolicy = 0x2
)

func (p DetectionPolicy) String() string {
	switch p {
	case DetectMagic:
		return "magic"
	case DetectSniff:
		return "sniff"
	default:
		return "unknown"
	}
}

// ParseDetectionPolicy maps "magic" or "sniff" to a DetectionPolicy.
func ParseDetectionPolicy(name string) (DetectionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "magic", "":
		return DetectMagic, nil
	case "sniff":
		return DetectSniff, nil
	default:
		return 0, fmt.Errorf("unknown smudge detection policy: %q", name)
	}
}

// ColumnSet is an immutable, sorted set of column names.
type ColumnSet struct {
	names []string
}

// NewColumnSet builds a set from names, dropping blanks and duplicates.
// The input slice is copied.
func NewColumnSet(names ...string) ColumnSet {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)

	return ColumnSet{names: slices.Compact(out)}
}

// Contains reports whether name is in the set.
func (c ColumnSet) Contains(name string) bool {
	_, found := slices.BinarySearch(c.names, name)
	return found
}

// Names returns a copy of the sorted member names.
func (c ColumnSet) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of names in the set.
func (c ColumnSet) Len() int {
	return len(c.names)
}

// CodecParams are the tuning parameters handed to the semantic codec.
type CodecParams struct {
	K                    int
	UncertaintyThreshold float64
	AutoLock             bool
	Compression          format.CompressionType
}

// Settings is the effective configuration for one filter invocation.
//
// Settings is a value type; sharing it between components never exposes
// mutable state.
type Settings struct {
	Codec               CodecParams
	LockedColumns       ColumnSet
	ResidualColumns     ColumnSet
	MinSizeBytes        int64
	MinCompressionRatio float64
	Detection           DetectionPolicy
	// Source is the file the settings were loaded from, empty for defaults.
	Source string
}

// Default returns the built-in settings used when no configuration file exists.
func Default() Settings {
	return Settings{
		Codec: CodecParams{
			K:                    DefaultK,
			UncertaintyThreshold: DefaultUncertaintyThreshold,
			AutoLock:             true,
			Compression:          format.CompressionZstd,
		},
		LockedColumns:       NewColumnSet(),
		ResidualColumns:     NewColumnSet(),
		MinSizeBytes:        DefaultMinSize,
		MinCompressionRatio: DefaultMinCompressionRatio,
		Detection:           DetectMagic,
	}
}

// Validate checks that every field is within its allowed range.
func (s Settings) Validate() error {
	var errs []error
	if s.Codec.K <= 0 {
		errs = append(errs, fmt.Errorf("compression.k must be positive, got %d", s.Codec.K))
	}
	if s.Codec.UncertaintyThreshold < 0 || s.Codec.UncertaintyThreshold > 1 {
		errs = append(errs, fmt.Errorf("compression.uncertainty_threshold must be in [0, 1], got %g",
			s.Codec.UncertaintyThreshold))
	}
	if s.Codec.Compression.String() == "Unknown" {
		errs = append(errs, fmt.Errorf("compression.algorithm is invalid: %d", s.Codec.Compression))
	}
	if s.MinSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("thresholds.min_size must not be negative, got %d", s.MinSizeBytes))
	}
	if s.MinCompressionRatio < 1 {
		errs = append(errs, fmt.Errorf("thresholds.min_compression_ratio must be at least 1, got %g",
			s.MinCompressionRatio))
	}
	if s.Detection.String() == "unknown" {
		errs = append(errs, fmt.Errorf("smudge.detection is invalid: %d", s.Detection))
	}

	return errors.Join(errs...)
}
