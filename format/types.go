// Package format defines the small enumerations shared by every layer of the
// filter: container compression algorithms, column types and source file kinds.
package format

import (
	"fmt"
	"path/filepath"
	"strings"
)

type (
	CompressionType uint8
	ColumnType      uint8
	SourceKind      string
)

const (
	CompressionNone   CompressionType = 0x1 // CompressionNone stores the blob body as-is.
	CompressionZstd   CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2     CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4    CompressionType = 0x4 // CompressionLZ4 represents LZ4 block compression.
	CompressionBrotli CompressionType = 0x5 // CompressionBrotli represents Brotli compression.

	ColumnString  ColumnType = 0x1 // ColumnString holds text compared by exact equality.
	ColumnNumeric ColumnType = 0x2 // ColumnNumeric holds float64 values compared by error metrics.
)

const (
	SourceCSV     SourceKind = "csv"
	SourceParquet SourceKind = "parquet"
	SourceJSON    SourceKind = "json"
	SourceImage   SourceKind = "image"
	SourceUnknown SourceKind = "unknown"
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	case CompressionBrotli:
		return "Brotli"
	default:
		return "Unknown"
	}
}

// ParseCompressionType maps a configuration name such as "zstd" to its CompressionType.
// Matching is case-insensitive.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	case "brotli":
		return CompressionBrotli, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %q", name)
	}
}

func (c ColumnType) String() string {
	switch c {
	case ColumnString:
		return "string"
	case ColumnNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// MarshalText renders the column type for reports.
func (c ColumnType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// sourceExtensions maps lower-case file extensions to their source kind.
var sourceExtensions = map[string]SourceKind{
	".csv":     SourceCSV,
	".parquet": SourceParquet,
	".json":    SourceJSON,
	".png":     SourceImage,
}

// DetectSourceKind infers the source kind of a file from its extension.
// Unrecognized extensions yield SourceUnknown.
func DetectSourceKind(path string) SourceKind {
	if kind, ok := sourceExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}

	return SourceUnknown
}

// SupportedExtensions returns the file extensions with a registered source kind.
func SupportedExtensions() []string {
	return []string{".csv", ".parquet", ".json", ".png"}
}
