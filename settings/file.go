package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/internal/logging"
)

const (
	// FileName is the configuration file name searched for by Find.
	FileName = ".sempress.yml"
	// MaxSearchDepth bounds how many directories Find inspects.
	MaxSearchDepth = 10
	// fileVersion is the only configuration schema version understood.
	fileVersion = 1
)

// ErrConfigExists is returned by WriteDefault when the target file already exists.
var ErrConfigExists = errors.New("settings: configuration file already exists")

// fileConfig mirrors the YAML layout. Pointer fields distinguish "absent"
// from zero so that a partial file merges over the defaults.
type fileConfig struct {
	Version     *int               `yaml:"version"`
	Compression compressionSection `yaml:"compression"`
	Thresholds  thresholdSection   `yaml:"thresholds"`
	Smudge      smudgeSection      `yaml:"smudge"`
}

type compressionSection struct {
	K                    *int     `yaml:"k"`
	UncertaintyThreshold *float64 `yaml:"uncertainty_threshold"`
	AutoLock             *bool    `yaml:"auto_lock"`
	LockCols             []string `yaml:"lock_cols"`
	ResidualCols         []string `yaml:"residual_cols"`
	Algorithm            *string  `yaml:"algorithm"`
}

type thresholdSection struct {
	MinSizeMB           *float64           `yaml:"min_size_mb"`
	MinSize             *datasize.ByteSize `yaml:"min_size"`
	MinCompressionRatio *float64           `yaml:"min_compression_ratio"`
}

type smudgeSection struct {
	Detection *string `yaml:"detection"`
}

// Find looks for FileName in searchRoot and its parents.
//
// The search inspects at most MaxSearchDepth directories and stops after the
// first directory containing a .git entry, so configuration never leaks in
// from outside the repository.
//
// Parameters:
//   - searchRoot: Directory to start from; relative paths are made absolute
//
// Returns:
//   - string: Path of the configuration file
//   - bool: false when no file was found
func Find(searchRoot string) (string, bool) {
	dir, err := filepath.Abs(searchRoot)
	if err != nil {
		return "", false
	}

	for range MaxSearchDepth {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

// Load returns the effective settings for searchRoot. It never fails.
//
// A missing file yields Default silently. An unreadable, unparsable or
// invalid file yields Default and a warning on logger.
//
// Parameters:
//   - searchRoot: Directory to start the configuration search from
//   - logger: Destination for diagnostics; nil discards them
//
// Returns:
//   - Settings: Effective, validated settings
func Load(searchRoot string, logger *zap.Logger) Settings {
	logger = logging.OrNop(logger)

	path, ok := Find(searchRoot)
	if !ok {
		logger.Debug("no configuration file found, using defaults", zap.String("root", searchRoot))
		return Default()
	}

	s, err := LoadFile(path)
	if err != nil {
		logger.Warn("ignoring configuration file, using defaults", zap.String("file", path), zap.Error(err))
		return Default()
	}
	logger.Debug("loaded configuration", zap.String("file", path))

	return s
}

// LoadFile reads and validates a single configuration file.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path

	return s, nil
}

// Parse merges YAML configuration data over Default and validates the result.
func Parse(data []byte) (Settings, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}

	if fc.Version != nil && *fc.Version != fileVersion {
		return Settings{}, fmt.Errorf("unsupported config version %d", *fc.Version)
	}

	s, err := fc.merge(Default())
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func (fc *fileConfig) merge(s Settings) (Settings, error) {
	c := fc.Compression
	if c.K != nil {
		s.Codec.K = *c.K
	}
	if c.UncertaintyThreshold != nil {
		s.Codec.UncertaintyThreshold = *c.UncertaintyThreshold
	}
	if c.AutoLock != nil {
		s.Codec.AutoLock = *c.AutoLock
	}
	if c.LockCols != nil {
		s.LockedColumns = NewColumnSet(c.LockCols...)
	}
	if c.ResidualCols != nil {
		s.ResidualColumns = NewColumnSet(c.ResidualCols...)
	}
	if c.Algorithm != nil {
		alg, err := format.ParseCompressionType(*c.Algorithm)
		if err != nil {
			return Settings{}, err
		}
		s.Codec.Compression = alg
	}

	t := fc.Thresholds
	if t.MinSizeMB != nil {
		s.MinSizeBytes = int64(*t.MinSizeMB * float64(datasize.MB))
	}
	if t.MinSize != nil {
		s.MinSizeBytes = int64(t.MinSize.Bytes())
	}
	if t.MinCompressionRatio != nil {
		s.MinCompressionRatio = *t.MinCompressionRatio
	}

	if fc.Smudge.Detection != nil {
		policy, err := ParseDetectionPolicy(*fc.Smudge.Detection)
		if err != nil {
			return Settings{}, err
		}
		s.Detection = policy
	}

	return s, nil
}

// DefaultFile is the commented configuration written by WriteDefault.
const DefaultFile = `version: 1

# Compression settings
compression:
  # Codebook size (higher = better compression, slower)
  k: 64

  # Uncertainty threshold for quality tracking
  uncertainty_threshold: 0.2

  # Auto-detect ID and timestamp columns for lossless storage
  auto_lock: true

  # Additional columns to preserve losslessly
  lock_cols:
    - id
    - user_id
    - timestamp
    - created_at

  # High-precision columns (store residuals)
  residual_cols:
    - amount
    - price
    - balance

  # Container compression for blobs: zstd, s2, lz4, brotli or none
  algorithm: zstd

# File processing thresholds
thresholds:
  # Only compress files at least this large (accepts 512KB, 2MB, ...)
  min_size: 1MB

  # Keep the original file if the achieved ratio is below this
  min_compression_ratio: 1.5

# How smudge recognizes compressed blobs: magic or sniff
smudge:
  detection: magic
`

// WriteDefault writes DefaultFile to path, refusing to overwrite an existing file.
func WriteDefault(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}

	if _, err := f.WriteString(DefaultFile); err != nil {
		_ = f.Close()
		return fmt.Errorf("write config file: %w", err)
	}

	return f.Close()
}
