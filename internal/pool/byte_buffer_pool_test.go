package pool

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_Appenders(t *testing.T) {
	bb := NewByteBuffer(4)

	bb.AppendByte(0x7F)
	bb.AppendUvarint(300)
	bb.AppendUint16(0xBEEF)
	bb.AppendFloat64(1.5)
	bb.AppendFloat32(2.5)
	bb.AppendString("amount")

	data := bb.Bytes()
	require.Equal(t, byte(0x7F), data[0])

	v, n := binary.Uvarint(data[1:])
	require.Equal(t, uint64(300), v)
	off := 1 + n

	require.Equal(t, uint16(0xBEEF), binary.LittleEndian.Uint16(data[off:]))
	off += 2
	require.InDelta(t, 1.5, math.Float64frombits(binary.LittleEndian.Uint64(data[off:])), 0)
	off += 8
	require.InDelta(t, 2.5, float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))), 0)
	off += 4

	l, n := binary.Uvarint(data[off:])
	off += n
	require.Equal(t, "amount", string(data[off:off+int(l)]))
}

func TestByteBuffer_Grow(t *testing.T) {
	bb := NewByteBuffer(0)
	bb.Grow(10)
	require.GreaterOrEqual(t, cap(bb.B), 10)
	require.Equal(t, 0, bb.Len())

	big := NewByteBuffer(5 * BodyBufferDefaultSize)
	big.B = big.B[:cap(big.B)]
	oldCap := cap(big.B)
	big.Grow(1)
	require.Equal(t, oldCap+oldCap/4, cap(big.B))
}

func TestByteBuffer_WriteTo(t *testing.T) {
	bb := NewByteBuffer(8)
	_, err := bb.Write([]byte("hello"))
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := bb.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.Equal(t, "hello", out.String())
}

func TestByteBufferPool(t *testing.T) {
	p := NewByteBufferPool(16, 32)

	bb := p.Get()
	require.NotNil(t, bb)
	bb.AppendString("x")
	p.Put(bb)

	again := p.Get()
	require.Equal(t, 0, again.Len())

	huge := NewByteBuffer(64)
	require.NotPanics(t, func() { p.Put(huge) })
	require.NotPanics(t, func() { p.Put(nil) })
}

func TestGetFloat64Slice(t *testing.T) {
	s, cleanup := GetFloat64Slice(100)
	require.Len(t, s, 100)
	cleanup()

	s2, cleanup2 := GetFloat64Slice(3)
	defer cleanup2()
	require.Len(t, s2, 3)
}
