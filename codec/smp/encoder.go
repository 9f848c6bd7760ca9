package smp

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/compress"
	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/internal/hash"
	"github.com/arloliu/sempress-lfs/internal/pool"
	"github.com/arloliu/sempress-lfs/table"
)

type columnMode uint8

const (
	modeDict          columnMode = 0x1
	modeRaw           columnMode = 0x2
	modeQuant         columnMode = 0x3
	modeQuantResidual columnMode = 0x4
)

func (m columnMode) String() string {
	switch m {
	case modeDict:
		return "dict"
	case modeRaw:
		return "raw"
	case modeQuant:
		return "quant"
	case modeQuantResidual:
		return "quant+residual"
	default:
		return "unknown"
	}
}

// columnIntegral marks a column whose approximations are rounded on decode.
const columnIntegral = 0x01

// wideIndexThreshold is the codebook size above which indices take two bytes.
const wideIndexThreshold = 256

// Encode compresses t into a blob.
//
// Parameters:
//   - t: Table to encode; it is not modified
//   - p: Codec parameters; K is clamped to MaxK
//
// Returns:
//   - []byte: Complete blob, header included
//   - error: Invalid parameters or oversized input
func Encode(t *table.Table, p codec.Params) ([]byte, error) {
	if p.K <= 0 {
		return nil, fmt.Errorf("smp: codebook size must be positive, got %d", p.K)
	}
	if p.UncertaintyThreshold < 0 {
		return nil, fmt.Errorf("smp: uncertainty threshold must not be negative, got %g", p.UncertaintyThreshold)
	}
	if uint64(len(t.Columns)) > math.MaxUint32 {
		return nil, errors.New("smp: too many columns")
	}

	buf := pool.GetBodyBuffer()
	defer pool.PutBodyBuffer(buf)

	enc := &encoder{
		buf:      buf,
		params:   p,
		k:        min(p.K, MaxK),
		locked:   toSet(p.Locked),
		residual: toSet(p.Residual),
	}

	buf.AppendUvarint(uint64(t.Rows()))
	enc.writeAttrs(t.Attrs)
	for _, col := range t.Columns {
		enc.writeColumn(col)
	}

	body := buf.Bytes()
	if uint64(len(body)) > math.MaxUint32 {
		return nil, errors.New("smp: table is too large for a single blob")
	}

	compression, payload, err := compressBody(p.Compression, body)
	if err != nil {
		return nil, err
	}

	h := Header{
		Version:     Version,
		Compression: compression,
		BodyLength:  uint32(len(body)),
		ColumnCount: uint32(len(t.Columns)),
		Checksum:    hash.Checksum(payload),
	}
	if enc.lossy {
		h.Flags |= FlagLossy
	}

	blob := make([]byte, 0, HeaderSize+len(payload))
	blob = append(blob, h.Bytes()...)
	blob = append(blob, payload...)

	return blob, nil
}

// compressBody applies the requested compression. Bodies the algorithm
// cannot shrink are stored uncompressed.
func compressBody(ct format.CompressionType, body []byte) (format.CompressionType, []byte, error) {
	c, err := compress.GetCodec(ct)
	if err != nil {
		return 0, nil, fmt.Errorf("smp: %w", err)
	}
	if ct == format.CompressionNone {
		return ct, body, nil
	}

	out, err := c.Compress(body)
	if err != nil || len(out) >= len(body) {
		return format.CompressionNone, body, nil
	}

	return ct, out, nil
}

type encoder struct {
	buf      *pool.ByteBuffer
	params   codec.Params
	k        int
	locked   map[string]struct{}
	residual map[string]struct{}
	lossy    bool
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}

	return set
}

func (e *encoder) writeAttrs(attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	e.buf.AppendUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.buf.AppendString(k)
		e.buf.AppendString(attrs[k])
	}
}

// modeFor picks the storage mode of col.
func (e *encoder) modeFor(col *table.Column) columnMode {
	if col.Type != format.ColumnNumeric {
		return modeDict
	}
	if _, ok := e.locked[col.Name]; ok {
		return modeRaw
	}
	if e.params.AutoLock && shouldAutoLock(col) {
		return modeRaw
	}
	if _, ok := e.residual[col.Name]; ok {
		return modeQuantResidual
	}

	return modeQuant
}

func (e *encoder) writeColumn(col *table.Column) {
	mode := e.modeFor(col)

	var flags byte
	if col.Integral {
		flags |= columnIntegral
	}

	e.buf.AppendString(col.Name)
	e.buf.AppendByte(byte(mode))
	e.buf.AppendByte(flags)

	switch mode {
	case modeDict:
		e.writeDict(col.Strings)
	case modeRaw:
		e.buf.Grow(8 * len(col.Floats))
		for _, v := range col.Floats {
			e.buf.AppendFloat64(v)
		}
	case modeQuant, modeQuantResidual:
		e.writeQuant(col.Floats, col.Integral, mode == modeQuantResidual)
	}
}

func (e *encoder) writeDict(values []string) {
	index := make(map[string]uint64)
	dict := make([]string, 0)
	ids := make([]uint64, len(values))
	for i, v := range values {
		id, ok := index[v]
		if !ok {
			id = uint64(len(dict))
			index[v] = id
			dict = append(dict, v)
		}
		ids[i] = id
	}

	e.buf.AppendUvarint(uint64(len(dict)))
	for _, s := range dict {
		e.buf.AppendString(s)
	}
	for _, id := range ids {
		e.buf.AppendUvarint(id)
	}
}

type exception struct {
	row   int
	value float64
}

func (e *encoder) writeQuant(values []float64, integral, withResidual bool) {
	centroids := buildCodebook(values, e.k)
	lo, hi, _ := finiteRange(values)
	tol := tolerance(e.params.UncertaintyThreshold, lo, hi, e.k)

	e.buf.AppendUvarint(uint64(len(centroids)))
	for _, c := range centroids {
		e.buf.AppendFloat64(c)
	}

	wide := len(centroids) > wideIndexThreshold
	var exceptions []exception
	var residuals []float32
	if withResidual {
		residuals = make([]float32, len(values))
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || len(centroids) == 0 {
			e.appendIndex(0, wide)
			exceptions = append(exceptions, exception{row: i, value: v})
			continue
		}

		idx := nearest(centroids, v)
		e.appendIndex(idx, wide)

		approx := centroids[idx]
		if withResidual {
			residuals[i] = float32(v - approx)
			approx += float64(residuals[i])
		}
		if integral {
			approx = math.Round(approx)
		}

		if math.Abs(v-approx) > tol {
			exceptions = append(exceptions, exception{row: i, value: v})
			if withResidual {
				residuals[i] = 0
			}
			continue
		}
		if approx != v {
			e.lossy = true
		}
	}

	e.buf.AppendUvarint(uint64(len(exceptions)))
	prev := 0
	for _, ex := range exceptions {
		e.buf.AppendUvarint(uint64(ex.row - prev))
		e.buf.AppendFloat64(ex.value)
		prev = ex.row
	}

	for _, r := range residuals {
		e.buf.AppendFloat32(r)
	}
}

func (e *encoder) appendIndex(idx int, wide bool) {
	if wide {
		e.buf.AppendUint16(uint16(idx))
		return
	}
	e.buf.AppendByte(byte(idx))
}
