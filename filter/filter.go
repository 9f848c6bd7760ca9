// Package filter implements the Git LFS clean and smudge transforms.
//
// Both directions always produce output for non-empty input: when anything
// goes wrong inside the filter the original bytes are written unchanged, so
// a failing codec never blocks a checkout or a commit. Only errors writing
// the output are returned.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/codec/smp"
	"github.com/arloliu/sempress-lfs/convert"
	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/gate"
	"github.com/arloliu/sempress-lfs/internal/logging"
	"github.com/arloliu/sempress-lfs/internal/options"
	"github.com/arloliu/sempress-lfs/settings"
	"github.com/arloliu/sempress-lfs/table"
)

// ErrEmptyInput is logged when a filter receives no bytes.
var ErrEmptyInput = errors.New("filter: empty input")

// Filter runs the clean and smudge transforms for one repository.
type Filter struct {
	settings  settings.Settings
	codec     codec.Codec
	detection settings.DetectionPolicy
	logger    *zap.Logger
}

// Option configures a Filter.
type Option = options.Option[*Filter]

// WithDetection overrides the smudge detection policy of the settings.
func WithDetection(p settings.DetectionPolicy) Option {
	return options.New(func(f *Filter) error {
		if p != settings.DetectMagic && p != settings.DetectSniff {
			return fmt.Errorf("filter: invalid detection policy %d", p)
		}
		f.detection = p

		return nil
	})
}

// New creates a Filter.
//
// Parameters:
//   - s: Effective settings, usually from settings.Load
//   - c: Semantic codec used in both directions
//   - logger: Diagnostic logger; nil disables logging
//   - opts: Optional configuration (WithDetection)
//
// Returns:
//   - *Filter: Ready-to-use filter
//   - error: Missing codec or invalid option values
func New(s settings.Settings, c codec.Codec, logger *zap.Logger, opts ...Option) (*Filter, error) {
	if c == nil {
		return nil, errors.New("filter: codec must not be nil")
	}

	f := &Filter{
		settings:  s,
		codec:     c,
		detection: s.Detection,
		logger:    logging.OrNop(logger),
	}
	if err := options.Apply(f, opts...); err != nil {
		return nil, err
	}

	return f, nil
}

// Clean reads a working-tree file from r and writes what is stored in the
// repository to w: a compressed blob when the gate accepts it, otherwise the
// original bytes.
//
// Parameters:
//   - ctx: Context handed to the codec
//   - r: File contents
//   - w: Filter output
//   - filename: Path of the file, used to detect its format; may be empty
//
// Returns:
//   - error: Failure writing to w
func (f *Filter) Clean(ctx context.Context, r io.Reader, w io.Writer, filename string) error {
	raw, ok := f.readInput(r, "clean", filename)
	if !ok {
		return nil
	}

	kind := sourceKind(filename)
	s := f.settings
	if locked := convert.LockedColumns(kind); len(locked) > 0 {
		s.LockedColumns = settings.NewColumnSet(append(s.LockedColumns.Names(), locked...)...)
	}

	g, err := gate.New(f.codec, gate.WithParser(tableParser(kind)), gate.WithLogger(f.logger.With(zap.String("file", filename))))
	if err != nil {
		f.logger.Error("gate setup failed, keeping original", zap.String("file", filename), zap.Error(err))
		return write(w, raw)
	}

	return write(w, gate.Output(g.Decide(ctx, raw, s), raw))
}

// Smudge reads what is stored in the repository from r and writes the
// working-tree file to w. Blobs are decoded and rendered back into the
// format they were cleaned from; anything else passes through.
//
// Parameters:
//   - ctx: Context handed to the codec
//   - r: Stored contents
//   - w: Filter output
//   - filename: Path of the file, used when the blob carries no format metadata
//
// Returns:
//   - error: Failure writing to w
func (f *Filter) Smudge(ctx context.Context, r io.Reader, w io.Writer, filename string) error {
	raw, ok := f.readInput(r, "smudge", filename)
	if !ok {
		return nil
	}

	if gate.Classify(raw, f.detection) == gate.PayloadPlain {
		f.logger.Debug("plain payload, passing through", zap.String("file", filename), zap.Int("bytes", len(raw)))
		return write(w, raw)
	}

	out, err := f.restore(ctx, raw, filename)
	if err != nil {
		f.logger.Warn("decompression failed, passing through", zap.String("file", filename), zap.Error(err))
		return write(w, raw)
	}
	fields := []zap.Field{zap.String("file", filename), zap.Int("blob_bytes", len(raw)), zap.Int("bytes", len(out))}
	if stats, err := smp.Stats(raw); err == nil {
		fields = append(fields, zap.Stringer("algorithm", stats.Algorithm), zap.Float64("space_savings_pct", stats.SpaceSavings()))
	}
	f.logger.Info("decompressed", fields...)

	return write(w, out)
}

// restore decodes blob and renders it in its original format.
func (f *Filter) restore(ctx context.Context, blob []byte, filename string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &codec.Error{Op: codec.OpDecode, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	tbl, err := f.codec.Decode(ctx, blob)
	if err != nil {
		return nil, err
	}

	meta, err := convert.MetadataFromAttrs(tbl.Attrs)
	if errors.Is(err, convert.ErrNoMetadata) {
		meta, err = convert.Metadata{Kind: sourceKind(filename)}, nil
	}
	if err != nil {
		return nil, err
	}

	return convert.FromTable(tbl, meta)
}

// readInput reads all of r. It reports false, after logging, when there is
// nothing to filter.
func (f *Filter) readInput(r io.Reader, direction, filename string) ([]byte, bool) {
	raw, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("failed to read input", zap.String("filter", direction), zap.String("file", filename), zap.Error(err))
		return nil, false
	}
	if len(raw) == 0 {
		f.logger.Warn("nothing to filter", zap.String("filter", direction), zap.String("file", filename), zap.Error(ErrEmptyInput))
		return nil, false
	}

	return raw, true
}

// tableParser converts raw input of kind into a table that carries its
// format metadata.
func tableParser(kind format.SourceKind) gate.Parser {
	return func(raw []byte) (*table.Table, error) {
		tbl, meta, err := convert.ToTable(raw, kind)
		if err != nil {
			return nil, err
		}
		if err := meta.Attach(tbl); err != nil {
			return nil, err
		}

		return tbl, nil
	}
}

// sourceKind detects the format of filename. Unknown names, including the
// empty name of data piped on stdin, are treated as CSV.
func sourceKind(filename string) format.SourceKind {
	kind := format.DetectSourceKind(filename)
	if kind == format.SourceUnknown {
		return format.SourceCSV
	}

	return kind
}

func write(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write filter output: %w", err)
	}

	return nil
}
