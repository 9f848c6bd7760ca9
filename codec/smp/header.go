package smp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/arloliu/sempress-lfs/compress"
	"github.com/arloliu/sempress-lfs/format"
)

const (
	// Magic is the three-byte prefix of every blob.
	Magic = "SMP"
	// Version is the blob format version written by this package.
	Version = 0x1
	// HeaderSize is the fixed size of the blob header in bytes.
	HeaderSize = 24

	// FlagLossy marks a body with at least one approximated column.
	FlagLossy = 0x01
)

var (
	ErrBadMagic          = errors.New("smp: not a blob (bad magic)")
	ErrUnsupportedFormat = errors.New("smp: unsupported blob version")
	ErrChecksum          = errors.New("smp: body checksum mismatch")
	ErrTruncated         = errors.New("smp: blob is truncated")
	ErrCorrupt           = errors.New("smp: blob body is corrupt")
)

// Header is the fixed-size blob header.
type Header struct {
	Version     uint8
	Compression format.CompressionType
	Flags       uint8
	BodyLength  uint32
	ColumnCount uint32
	Checksum    uint64
}

// Lossy reports whether any column in the blob was approximated.
func (h Header) Lossy() bool {
	return h.Flags&FlagLossy != 0
}

// Bytes serializes the header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:3], Magic)
	b[3] = h.Version
	b[4] = uint8(h.Compression)
	b[5] = h.Flags
	binary.LittleEndian.PutUint32(b[8:12], h.BodyLength)
	binary.LittleEndian.PutUint32(b[12:16], h.ColumnCount)
	binary.LittleEndian.PutUint64(b[16:24], h.Checksum)

	return b
}

// IsBlob reports whether data starts with the blob magic and a known version.
func IsBlob(data []byte) bool {
	return len(data) >= len(Magic)+1 &&
		bytes.HasPrefix(data, []byte(Magic)) &&
		data[len(Magic)] == Version
}

// ParseHeader parses and validates the header at the start of blob.
//
// Parameters:
//   - blob: Complete blob or at least its first HeaderSize bytes
//
// Returns:
//   - Header: Parsed header
//   - error: ErrBadMagic, ErrUnsupportedFormat or ErrTruncated
func ParseHeader(blob []byte) (Header, error) {
	if !bytes.HasPrefix(blob, []byte(Magic)) {
		return Header{}, ErrBadMagic
	}
	if len(blob) < HeaderSize {
		return Header{}, ErrTruncated
	}

	h := Header{
		Version:     blob[3],
		Compression: format.CompressionType(blob[4]),
		Flags:       blob[5],
		BodyLength:  binary.LittleEndian.Uint32(blob[8:12]),
		ColumnCount: binary.LittleEndian.Uint32(blob[12:16]),
		Checksum:    binary.LittleEndian.Uint64(blob[16:24]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedFormat, h.Version)
	}
	if h.Compression.String() == "Unknown" {
		return Header{}, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, blob[4])
	}

	return h, nil
}

// Stats reports the container compression of blob, from its header.
func Stats(blob []byte) (compress.CompressionStats, error) {
	h, err := ParseHeader(blob)
	if err != nil {
		return compress.CompressionStats{}, err
	}

	return compress.CompressionStats{
		Algorithm:      h.Compression,
		OriginalSize:   int64(h.BodyLength),
		CompressedSize: int64(len(blob) - HeaderSize),
	}, nil
}
