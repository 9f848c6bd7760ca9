package compress

// ZstdCompressor provides Zstandard compression for blob bodies.
//
// Codebook indices and dictionary references compress very well with Zstd,
// which is why it is the default algorithm for the clean filter.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
