package smp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/sempress-lfs/compress"
	"github.com/arloliu/sempress-lfs/internal/hash"
	"github.com/arloliu/sempress-lfs/table"
)

// minColumnBytes is the smallest encoded column: empty name, mode, flags.
const minColumnBytes = 3

// Decode reconstructs the table stored in blob.
//
// The header, checksum and every length in the body are validated before
// use, so corrupt input yields an error rather than a panic or an oversized
// allocation.
//
// Parameters:
//   - blob: Complete blob produced by Encode
//
// Returns:
//   - *table.Table: Reconstructed table, attributes included
//   - error: ErrBadMagic, ErrUnsupportedFormat, ErrChecksum, ErrTruncated or ErrCorrupt
func Decode(blob []byte) (*table.Table, error) {
	h, err := ParseHeader(blob)
	if err != nil {
		return nil, err
	}

	payload := blob[HeaderSize:]
	if hash.Checksum(payload) != h.Checksum {
		return nil, ErrChecksum
	}

	c, err := compress.GetCodec(h.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	body, err := c.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress body: %w", ErrCorrupt, err)
	}
	if uint64(len(body)) != uint64(h.BodyLength) {
		return nil, fmt.Errorf("%w: body length %d, header says %d", ErrCorrupt, len(body), h.BodyLength)
	}
	if uint64(h.ColumnCount)*minColumnBytes > uint64(len(body)) {
		return nil, fmt.Errorf("%w: column count %d exceeds body", ErrCorrupt, h.ColumnCount)
	}

	r := &reader{data: body}
	rows := r.count(len(body))
	attrs := r.attrs()

	cols := make([]*table.Column, 0, h.ColumnCount)
	for range h.ColumnCount {
		col := r.column(rows)
		if r.err != nil {
			return nil, r.err
		}
		cols = append(cols, col)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-r.pos)
	}

	t, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	for k, v := range attrs {
		t.SetAttr(k, v)
	}

	return t, nil
}

// reader decodes the body with a sticky error: after the first failure every
// method returns zero values.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.remaining() {
		r.fail(ErrTruncated)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n

	return b
}

func (r *reader) byte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}

	return b[0]
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		r.fail(ErrTruncated)
		return 0
	}
	r.pos += n

	return v
}

// count reads a uvarint that must not exceed limit.
func (r *reader) count(limit int) int {
	v := r.uvarint()
	if v > uint64(limit) {
		r.fail(fmt.Errorf("%w: count %d exceeds limit %d", ErrCorrupt, v, limit))
		return 0
	}

	return int(v)
}

func (r *reader) float64() float64 {
	b := r.next(8)
	if b == nil {
		return 0
	}

	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) float32() float32 {
	b := r.next(4)
	if b == nil {
		return 0
	}

	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (r *reader) uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(b)
}

func (r *reader) string() string {
	n := r.count(r.remaining())
	return string(r.next(n))
}

func (r *reader) attrs() map[string]string {
	n := r.count(r.remaining() / 2)
	attrs := make(map[string]string, n)
	for range n {
		k := r.string()
		attrs[k] = r.string()
	}

	return attrs
}

func (r *reader) column(rows int) *table.Column {
	name := r.string()
	mode := columnMode(r.byte())
	flags := r.byte()
	if r.err != nil {
		return nil
	}

	switch mode {
	case modeDict:
		return table.NewStringColumn(name, r.dict(rows))
	case modeRaw:
		if rows*8 > r.remaining() {
			r.fail(ErrTruncated)
			return nil
		}
		values := make([]float64, rows)
		for i := range values {
			values[i] = r.float64()
		}

		return table.NewNumericColumn(name, values)
	case modeQuant, modeQuantResidual:
		values := r.quant(rows, flags&columnIntegral != 0, mode == modeQuantResidual)
		return table.NewNumericColumn(name, values)
	default:
		r.fail(fmt.Errorf("%w: column %q has unknown mode %d", ErrCorrupt, name, mode))
		return nil
	}
}

func (r *reader) dict(rows int) []string {
	n := r.count(r.remaining())
	dict := make([]string, n)
	for i := range dict {
		dict[i] = r.string()
	}
	if rows > r.remaining() {
		r.fail(ErrTruncated)
		return nil
	}

	values := make([]string, rows)
	for i := range values {
		id := r.uvarint()
		if r.err != nil {
			return nil
		}
		if id >= uint64(n) {
			r.fail(fmt.Errorf("%w: dictionary index %d out of range", ErrCorrupt, id))
			return nil
		}
		values[i] = dict[id]
	}

	return values
}

func (r *reader) quant(rows int, integral, withResidual bool) []float64 {
	k := r.count(min(r.remaining()/8, MaxK))
	centroids := make([]float64, k)
	for i := range centroids {
		centroids[i] = r.float64()
	}

	wide := k > wideIndexThreshold
	width := 1
	if wide {
		width = 2
	}
	if rows*width > r.remaining() {
		r.fail(ErrTruncated)
		return nil
	}

	indices := make([]int, rows)
	for i := range indices {
		if wide {
			indices[i] = int(r.uint16())
		} else {
			indices[i] = int(r.byte())
		}
	}

	exact := make(map[int]float64)
	nExceptions := r.count(rows)
	row := 0
	for i := range nExceptions {
		delta := r.count(rows)
		row += delta
		if row >= rows || (i > 0 && delta == 0) {
			r.fail(fmt.Errorf("%w: exception row %d out of range", ErrCorrupt, row))
			return nil
		}
		exact[row] = r.float64()
	}

	var residuals []float32
	if withResidual {
		if rows*4 > r.remaining() {
			r.fail(ErrTruncated)
			return nil
		}
		residuals = make([]float32, rows)
		for i := range residuals {
			residuals[i] = r.float32()
		}
	}
	if r.err != nil {
		return nil
	}

	values := make([]float64, rows)
	for i, idx := range indices {
		if v, ok := exact[i]; ok {
			values[i] = v
			continue
		}
		if idx >= k {
			r.fail(fmt.Errorf("%w: codebook index %d out of range", ErrCorrupt, idx))
			return nil
		}

		v := centroids[idx]
		if withResidual {
			v += float64(residuals[i])
		}
		if integral {
			v = math.Round(v)
		}
		values[i] = v
	}

	return values
}
