package smp

import (
	"context"
	"fmt"
	"os"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/table"
)

// Codec is the in-process codec.Codec for .smp blobs.
type Codec struct{}

var _ codec.Codec = Codec{}

// NewCodec returns the in-process codec.
func NewCodec() Codec {
	return Codec{}
}

// Encode implements codec.Encoder.
func (Codec) Encode(ctx context.Context, t *table.Table, p codec.Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &codec.Error{Op: codec.OpEncode, Err: err}
	}

	blob, err := Encode(t, p)
	if err != nil {
		return nil, &codec.Error{Op: codec.OpEncode, Err: err}
	}

	return blob, nil
}

// Decode implements codec.Decoder.
func (Codec) Decode(ctx context.Context, blob []byte) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, &codec.Error{Op: codec.OpDecode, Err: err}
	}

	t, err := Decode(blob)
	if err != nil {
		return nil, &codec.Error{Op: codec.OpDecode, Err: err}
	}

	return t, nil
}

// Backend is the file-based codec.Backend for .smp blobs, for use with
// codec.Adapter.
type Backend struct{}

var _ codec.Backend = Backend{}

// NewBackend returns the file-based backend.
func NewBackend() Backend {
	return Backend{}
}

// EncodeFile reads the CSV table at src and encodes it with attrs attached.
// Columns listed under codec.TextColumnsAttr are kept as text.
func (Backend) EncodeFile(ctx context.Context, src string, attrs map[string]string, p codec.Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read staged table: %w", err)
	}
	text, err := codec.TextColumns(attrs)
	if err != nil {
		return nil, fmt.Errorf("parse staged table: %w", err)
	}
	t, err := table.ParseCSVWithText(data, text...)
	if err != nil {
		return nil, fmt.Errorf("parse staged table: %w", err)
	}
	for k, v := range attrs {
		t.SetAttr(k, v)
	}

	return Encode(t, p)
}

// DecodeFile decodes the blob at src and writes the table as CSV to dst.
func (Backend) DecodeFile(ctx context.Context, src, dst string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read staged blob: %w", err)
	}
	t, err := Decode(blob)
	if err != nil {
		return nil, err
	}

	data, err := t.MarshalCSV()
	if err != nil {
		return nil, fmt.Errorf("render table: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return nil, fmt.Errorf("write restored table: %w", err)
	}

	return t.Attrs, nil
}
