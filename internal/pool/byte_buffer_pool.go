package pool

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

const (
	BodyBufferDefaultSize  = 1024 * 64        // 64KiB
	BodyBufferMaxThreshold = 1024 * 1024 * 16 // 16MiB
)

// ByteBuffer is an append-only little-endian writer used to assemble blob bodies.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified default size.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{
		B: make([]byte, 0, defaultSize),
	}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset empties the buffer but keeps its capacity.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Grow ensures the buffer can hold n more bytes without reallocating.
//
// Small buffers grow by BodyBufferDefaultSize; larger ones by 25% of their
// capacity, whichever covers n.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}

	growBy := BodyBufferDefaultSize
	if cap(bb.B) > 4*BodyBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < n {
		growBy = n
	}

	newBuf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

// Write appends data to the buffer. It never fails.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// WriteTo writes the contents of the buffer to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// AppendByte appends a single byte.
func (bb *ByteBuffer) AppendByte(v byte) {
	bb.B = append(bb.B, v)
}

// AppendUvarint appends v as an unsigned varint.
func (bb *ByteBuffer) AppendUvarint(v uint64) {
	bb.B = binary.AppendUvarint(bb.B, v)
}

// AppendUint16 appends v in little-endian order.
func (bb *ByteBuffer) AppendUint16(v uint16) {
	bb.B = binary.LittleEndian.AppendUint16(bb.B, v)
}

// AppendFloat64 appends the IEEE 754 bits of v in little-endian order.
func (bb *ByteBuffer) AppendFloat64(v float64) {
	bb.B = binary.LittleEndian.AppendUint64(bb.B, math.Float64bits(v))
}

// AppendFloat32 appends the IEEE 754 bits of v in little-endian order.
func (bb *ByteBuffer) AppendFloat32(v float32) {
	bb.B = binary.LittleEndian.AppendUint32(bb.B, math.Float32bits(v))
}

// AppendString appends a uvarint length prefix followed by the string bytes.
func (bb *ByteBuffer) AppendString(s string) {
	bb.Grow(binary.MaxVarintLen64 + len(s))
	bb.B = binary.AppendUvarint(bb.B, uint64(len(s)))
	bb.B = append(bb.B, s...)
}

// ByteBufferPool is a sync.Pool of ByteBuffers that drops buffers grown past
// maxThreshold instead of retaining them.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a new ByteBufferPool with buffers of the specified default size.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a ByteBuffer to the pool for reuse.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}

	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}

	bb.Reset()
	bbp.pool.Put(bb)
}

var bodyDefaultPool = NewByteBufferPool(BodyBufferDefaultSize, BodyBufferMaxThreshold)

// GetBodyBuffer retrieves a ByteBuffer from the default blob body pool.
func GetBodyBuffer() *ByteBuffer {
	return bodyDefaultPool.Get()
}

// PutBodyBuffer returns a ByteBuffer to the default blob body pool.
func PutBodyBuffer(bb *ByteBuffer) {
	bodyDefaultPool.Put(bb)
}
