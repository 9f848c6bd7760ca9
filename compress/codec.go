// Package compress provides the general-purpose compression stage applied to
// .smp blob bodies after semantic encoding.
//
// Semantic encoding replaces numeric columns with small codebook indices, which
// leaves long runs of repetitive bytes; a second pass with a general-purpose
// algorithm removes most of what is left. Supported algorithms:
//   - None: body stored as-is
//   - Zstd: best ratio, the default
//   - S2: faster, slightly larger
//   - LZ4: fastest decode
//   - Brotli: highest ratio on text-heavy tables, slowest encode
package compress

import (
	"fmt"

	"github.com/arloliu/sempress-lfs/format"
)

// Compressor compresses a complete blob body.
//
// Memory management:
//   - Returned slice is newly allocated and owned by the caller
//   - Input slice is not modified
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor of the same algorithm.
//
// Implementations return an error when the input is corrupted or was produced
// by a different algorithm. Implementations in this package are safe for
// concurrent use.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CompressionStats describes a single compression operation for logging and
// the repository analysis report.
type CompressionStats struct {
	// Algorithm identifies the compression algorithm used
	Algorithm format.CompressionType

	// OriginalSize is the size of input data before compression
	OriginalSize int64

	// CompressedSize is the size of data after compression
	CompressedSize int64
}

// CompressionRatio returns compressed size / original size.
//
// Values below 1.0 indicate a size reduction. Returns 0 when the original
// size is zero.
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space savings as a percentage.
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

// CreateCodec is a factory function that creates a Codec for compressionType.
//
// Parameters:
//   - compressionType: Type of compression (None, Zstd, S2, LZ4 or Brotli)
//   - target: Description of target usage (for error messages)
//
// Returns:
//   - Codec: Compressor instance for the specified type
//   - error: Invalid compression type error
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	case format.CompressionBrotli:
		return NewBrotliCompressor(DefaultBrotliQuality), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone:   NewNoOpCompressor(),
	format.CompressionZstd:   NewZstdCompressor(),
	format.CompressionS2:     NewS2Compressor(),
	format.CompressionLZ4:    NewLZ4Compressor(),
	format.CompressionBrotli: NewBrotliCompressor(DefaultBrotliQuality),
}

// GetCodec retrieves a shared built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
