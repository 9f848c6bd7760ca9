// Package smp implements the built-in semantic table codec and its .smp blob
// format.
//
// # Blob Layout
//
//	offset  size  field
//	0       3     magic "SMP"
//	3       1     format version
//	4       1     body compression (format.CompressionType)
//	5       1     flags (bit 0: body contains lossy columns)
//	6       2     reserved, zero
//	8       4     uncompressed body length (little-endian uint32)
//	12      4     column count (little-endian uint32)
//	16      8     xxHash64 of the compressed body (little-endian)
//	24      ...   compressed body
//
// The body lists the row count, the table attributes and every column in
// table order. Each column is stored in one of four modes:
//   - dict: string columns, a lossless dictionary plus per-row indices
//   - raw: locked numeric columns, float64 bits per row
//   - quant: numeric columns, a 1-D k-means codebook plus per-row indices;
//     values too far from their centroid are kept as exact exceptions
//   - quant+residual: quant plus a float32 correction per row
//
// When a numeric column has no more distinct values than the codebook size,
// the codebook is exact and the column round-trips losslessly.
package smp
