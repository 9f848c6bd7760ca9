// Package codec defines the boundary between the filter and a semantic table
// codec.
//
// A Codec turns a table into an opaque blob and back. Backends that work on
// files, such as external encoder programs, are adapted to the Codec
// interface by Adapter, which owns the scoped temporary workspace they need.
package codec

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/settings"
	"github.com/arloliu/sempress-lfs/table"
)

const (
	OpEncode = "encode"
	OpDecode = "decode"
)

// ErrEmptyBlob is reported when an encoder produces no output.
var ErrEmptyBlob = errors.New("codec: encoder produced an empty blob")

// Params are the codec tuning parameters derived from the settings record.
type Params struct {
	// K is the codebook size.
	K int
	// UncertaintyThreshold bounds the approximation error, relative to one
	// codebook cell, above which a value is stored exactly.
	UncertaintyThreshold float64
	// AutoLock enables lossless storage for identifier and time-like columns.
	AutoLock bool
	// Locked lists columns stored losslessly.
	Locked []string
	// Residual lists columns stored with a per-row correction term.
	Residual []string
	// Compression is the container compression applied to the blob body.
	Compression format.CompressionType
}

// ParamsFromSettings extracts the codec parameters from s.
func ParamsFromSettings(s settings.Settings) Params {
	return Params{
		K:                    s.Codec.K,
		UncertaintyThreshold: s.Codec.UncertaintyThreshold,
		AutoLock:             s.Codec.AutoLock,
		Locked:               s.LockedColumns.Names(),
		Residual:             s.ResidualColumns.Names(),
		Compression:          s.Codec.Compression,
	}
}

// DefaultParams returns the parameters of settings.Default.
func DefaultParams() Params {
	return ParamsFromSettings(settings.Default())
}

// Encoder compresses a table into an opaque blob.
type Encoder interface {
	Encode(ctx context.Context, t *table.Table, p Params) ([]byte, error)
}

// Decoder reconstructs a table from a blob produced by the matching Encoder.
type Decoder interface {
	Decode(ctx context.Context, blob []byte) (*table.Table, error)
}

// Codec is a semantic table codec.
type Codec interface {
	Encoder
	Decoder
}

// Error is returned for any failure inside the codec boundary, including
// recovered panics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCodecError reports whether err originates from the codec boundary.
func IsCodecError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// wrapError wraps err as an *Error unless it already is one.
func wrapError(op string, err error) error {
	if err == nil || IsCodecError(err) {
		return err
	}

	return &Error{Op: op, Err: err}
}
