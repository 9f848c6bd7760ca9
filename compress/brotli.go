package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// DefaultBrotliQuality balances encode time against ratio for blob bodies.
// Range is 0 (fastest) to 11 (densest).
const DefaultBrotliQuality = 6

// BrotliCompressor provides Brotli compression, which does best on tables
// dominated by string dictionary payloads.
type BrotliCompressor struct {
	quality int
}

var _ Codec = (*BrotliCompressor)(nil)

// NewBrotliCompressor creates a Brotli compressor with the given quality,
// clamped to the valid range.
func NewBrotliCompressor(quality int) BrotliCompressor {
	if quality < brotli.BestSpeed {
		quality = brotli.BestSpeed
	}
	if quality > brotli.BestCompression {
		quality = brotli.BestCompression
	}

	return BrotliCompressor{quality: quality}
}

// Compress compresses the input data using Brotli.
func (c BrotliCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.quality)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli compression failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses Brotli data.
func (c BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("brotli decompression failed: %w", err)
	}

	return out, nil
}
