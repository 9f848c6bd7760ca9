// Package gate decides whether a tabular file is stored compressed.
//
// The gate combines a cheap size-based ratio estimate, the configured size
// and ratio thresholds, and the ratio actually achieved by the codec. It
// never writes files and never fails: every problem becomes a Skip or a
// Reject decision, after which the caller stores the original bytes.
package gate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/internal/logging"
	"github.com/arloliu/sempress-lfs/internal/options"
	"github.com/arloliu/sempress-lfs/settings"
	"github.com/arloliu/sempress-lfs/table"
)

// Parser recovers a table from the raw bytes of a file.
type Parser func(raw []byte) (*table.Table, error)

// Gate makes clean-path compression decisions.
type Gate struct {
	encoder codec.Encoder
	parse   Parser
	logger  *zap.Logger
}

// Option configures a Gate.
type Option = options.Option[*Gate]

// WithParser sets how raw input is turned into a table. The default parses CSV.
func WithParser(p Parser) Option {
	return options.New(func(g *Gate) error {
		if p == nil {
			return fmt.Errorf("gate: parser must not be nil")
		}
		g.parse = p

		return nil
	})
}

// WithLogger sets the decision logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(g *Gate) {
		g.logger = logging.OrNop(logger)
	})
}

// New creates a Gate around enc.
//
// Parameters:
//   - enc: Semantic encoder invoked for inputs that pass the thresholds
//   - opts: Optional configuration (WithParser, WithLogger)
//
// Returns:
//   - *Gate: Ready-to-use gate
//   - error: Invalid option values
func New(enc codec.Encoder, opts ...Option) (*Gate, error) {
	g := &Gate{
		encoder: enc,
		parse:   table.ParseCSV,
		logger:  zap.NewNop(),
	}
	if err := options.Apply(g, opts...); err != nil {
		return nil, err
	}

	return g, nil
}

// Decide returns the compression decision for raw under s.
//
// The checks run in order: empty input, minimum size, estimated ratio, codec
// outcome and achieved ratio. The encoder is only invoked when the cheap
// checks pass. raw and s are never modified.
//
// Parameters:
//   - ctx: Context handed to the encoder
//   - raw: Complete file contents
//   - s: Effective settings
//
// Returns:
//   - Decision: Skip, Accept or Reject
func (g *Gate) Decide(ctx context.Context, raw []byte, s settings.Settings) Decision {
	d := g.decide(ctx, raw, s)
	g.log(d, len(raw))

	return d
}

func (g *Gate) decide(ctx context.Context, raw []byte, s settings.Settings) Decision {
	if len(raw) == 0 {
		return Skip{Reason: ReasonEmptyInput}
	}

	estimated := EstimateRatio(uint64(len(raw)))
	if int64(len(raw)) < s.MinSizeBytes {
		return Skip{Reason: ReasonBelowSize, EstimatedRatio: estimated}
	}
	if estimated < s.MinCompressionRatio {
		return Skip{Reason: ReasonBelowRatio, EstimatedRatio: estimated}
	}

	blob, err := g.encode(ctx, raw, s)
	if err != nil {
		return Reject{Reason: ReasonCodecError, Fallback: raw, Err: err}
	}

	achieved := float64(len(raw)) / float64(len(blob))
	if achieved < s.MinCompressionRatio {
		return Reject{Reason: ReasonRatioNotMet, Fallback: raw, Ratio: achieved}
	}

	return Accept{Blob: blob, Ratio: achieved, EstimatedRatio: estimated}
}

// encode recovers the table and runs the encoder. Parse failures, encoder
// errors, panics and empty output are all reported as *codec.Error.
func (g *Gate) encode(ctx context.Context, raw []byte, s settings.Settings) (blob []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			blob = nil
			err = &codec.Error{Op: codec.OpEncode, Err: fmt.Errorf("encoder panic: %v", r)}
		}
	}()

	tbl, err := g.parse(raw)
	if err != nil {
		return nil, &codec.Error{Op: codec.OpEncode, Err: fmt.Errorf("recover table: %w", err)}
	}

	blob, err = g.encoder.Encode(ctx, tbl, codec.ParamsFromSettings(s))
	if err != nil {
		if codec.IsCodecError(err) {
			return nil, err
		}

		return nil, &codec.Error{Op: codec.OpEncode, Err: err}
	}
	if len(blob) == 0 {
		return nil, &codec.Error{Op: codec.OpEncode, Err: codec.ErrEmptyBlob}
	}

	return blob, nil
}

func (g *Gate) log(d Decision, size int) {
	switch d := d.(type) {
	case Skip:
		g.logger.Debug("compression skipped",
			zap.String("reason", string(d.Reason)),
			zap.Int("bytes", size),
			zap.Float64("estimated_ratio", d.EstimatedRatio))
	case Accept:
		g.logger.Info("compression accepted",
			zap.Int("bytes", size),
			zap.Int("blob_bytes", len(d.Blob)),
			zap.Float64("ratio", d.Ratio))
	case Reject:
		g.logger.Warn("compression rejected, keeping original",
			zap.String("reason", string(d.Reason)),
			zap.Int("bytes", size),
			zap.Float64("ratio", d.Ratio),
			zap.Error(d.Err))
	}
}
