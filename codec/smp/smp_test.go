package smp

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/format"
	"github.com/arloliu/sempress-lfs/internal/hash"
	"github.com/arloliu/sempress-lfs/table"
)

func mustTable(t *testing.T, cols ...*table.Column) *table.Table {
	t.Helper()
	tbl, err := table.New(cols...)
	require.NoError(t, err)

	return tbl
}

func noisyValues(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + rng.NormFloat64()*25 + float64(i%7)*0.01
	}

	return values
}

func TestRoundTrip_Lossless(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumericColumn("category_code", []float64{1, 2, 1, 3, 2, 1}),
		table.NewNumericColumn("score", []float64{0.5, 0.25, 0.5, math.NaN(), 0.25, 0.5}),
		table.NewStringColumn("region", []string{"eu", "us", "eu", "", "apac", "us"}),
	)
	tbl.SetAttr("source", "csv")

	p := codec.DefaultParams()
	p.AutoLock = false

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	require.True(t, IsBlob(blob))

	h, err := ParseHeader(blob)
	require.NoError(t, err)
	require.False(t, h.Lossy())
	require.Equal(t, uint32(3), h.ColumnCount)

	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, tbl.Names(), got.Names())
	require.Equal(t, "csv", got.Attrs["source"])

	require.Equal(t, tbl.Columns[0].Floats, got.Columns[0].Floats)
	require.Equal(t, tbl.Columns[2].Strings, got.Columns[2].Strings)
	score := got.Columns[1].Floats
	require.True(t, math.IsNaN(score[3]))
	require.Equal(t, []float64{0.5, 0.25, 0.5}, score[:3])
}

func TestRoundTrip_AllCompressions(t *testing.T) {
	values := noisyValues(500, 1)
	for _, ct := range []format.CompressionType{
		format.CompressionNone, format.CompressionZstd, format.CompressionS2,
		format.CompressionLZ4, format.CompressionBrotli,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			tbl := mustTable(t, table.NewNumericColumn("v", values))
			p := codec.DefaultParams()
			p.Compression = ct

			blob, err := Encode(tbl, p)
			require.NoError(t, err)

			got, err := Decode(blob)
			require.NoError(t, err)
			require.Len(t, got.Columns[0].Floats, len(values))
		})
	}
}

func TestQuantization_ToleranceBound(t *testing.T) {
	values := noisyValues(2000, 7)
	tbl := mustTable(t, table.NewNumericColumn("reading", values))

	p := codec.DefaultParams()
	p.K = 16
	p.UncertaintyThreshold = 0.2

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	h, err := ParseHeader(blob)
	require.NoError(t, err)
	require.True(t, h.Lossy())

	got, err := Decode(blob)
	require.NoError(t, err)

	lo, hi, _ := finiteRange(values)
	tol := tolerance(p.UncertaintyThreshold, lo, hi, p.K)
	for i, v := range values {
		require.LessOrEqual(t, math.Abs(v-got.Columns[0].Floats[i]), tol, "row %d", i)
	}
}

func TestQuantization_ZeroThresholdIsLossless(t *testing.T) {
	values := noisyValues(300, 3)
	tbl := mustTable(t, table.NewNumericColumn("reading", values))

	p := codec.DefaultParams()
	p.K = 4
	p.UncertaintyThreshold = 0

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, values, got.Columns[0].Floats)
}

func TestResidualColumns(t *testing.T) {
	values := noisyValues(1000, 11)
	tbl := mustTable(t, table.NewNumericColumn("amount", values))

	p := codec.DefaultParams()
	p.K = 8
	p.UncertaintyThreshold = 1

	maxErr := func(p codec.Params) float64 {
		blob, err := Encode(tbl, p)
		require.NoError(t, err)
		got, err := Decode(blob)
		require.NoError(t, err)

		worst := 0.0
		for i, v := range values {
			worst = max(worst, math.Abs(v-got.Columns[0].Floats[i]))
		}

		return worst
	}

	plain := maxErr(p)
	p.Residual = []string{"amount"}
	withResidual := maxErr(p)

	require.Less(t, withResidual, plain)
	require.Less(t, withResidual, 1e-3)
}

func TestLockedColumns(t *testing.T) {
	values := noisyValues(400, 5)
	tbl := mustTable(t, table.NewNumericColumn("amount", values))

	p := codec.DefaultParams()
	p.K = 2
	p.Locked = []string{"amount"}

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, values, got.Columns[0].Floats)
}

func TestAutoLock(t *testing.T) {
	tests := []struct {
		name     string
		col      *table.Column
		expected bool
	}{
		{"id name", table.NewNumericColumn("id", []float64{1.5}), true},
		{"suffix id", table.NewNumericColumn("user_id", []float64{1.5}), true},
		{"camel id", table.NewNumericColumn("orderId", []float64{1.5}), true},
		{"created at", table.NewNumericColumn("created_at", []float64{1.5}), true},
		{"timestamp", table.NewNumericColumn("Timestamp", []float64{1.5}), true},
		{"distinct integers", table.NewNumericColumn("seq", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}), true},
		{"repeated integers", table.NewNumericColumn("qty", []float64{1, 1, 2, 2, 1, 1, 2, 2, 1, 1}), false},
		{"fractions", table.NewNumericColumn("price", []float64{1.5, 2.5, 3.5}), false},
		{"string", table.NewStringColumn("id", []string{"a"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, shouldAutoLock(tt.col))
		})
	}
}

func TestAutoLock_PreservesIdentifiers(t *testing.T) {
	n := 600
	ids := make([]float64, n)
	for i := range ids {
		ids[i] = float64(1_000_000 + i*3)
	}
	tbl := mustTable(t, table.NewNumericColumn("id", ids), table.NewNumericColumn("amount", noisyValues(n, 9)))

	p := codec.DefaultParams()
	p.K = 4

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, ids, got.Columns[0].Floats)
}

func TestIntegralColumnsAreRounded(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i % 500)
	}
	tbl := mustTable(t, table.NewNumericColumn("qty", values))

	p := codec.DefaultParams()
	p.K = 32
	p.AutoLock = false

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	for _, v := range got.Columns[0].Floats {
		require.Equal(t, math.Round(v), v)
	}
	require.True(t, got.Columns[0].Integral)
}

func TestWideCodebook(t *testing.T) {
	values := make([]float64, 2000)
	for i := range values {
		values[i] = float64(i) * 0.5
	}
	tbl := mustTable(t, table.NewNumericColumn("reading", values))

	p := codec.DefaultParams()
	p.K = 1000

	blob, err := Encode(tbl, p)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	require.Len(t, got.Columns[0].Floats, len(values))
}

func TestEmptyTable(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumericColumn("a", []float64{}),
		table.NewStringColumn("b", []string{}),
	)

	blob, err := Encode(tbl, codec.DefaultParams())
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)
	rows, cols := got.Shape()
	require.Zero(t, rows)
	require.Equal(t, 2, cols)
}

func TestEncode_InvalidParams(t *testing.T) {
	tbl := mustTable(t, table.NewNumericColumn("a", []float64{1}))

	p := codec.DefaultParams()
	p.K = 0
	_, err := Encode(tbl, p)
	require.Error(t, err)

	p = codec.DefaultParams()
	p.Compression = 0
	_, err = Encode(tbl, p)
	require.Error(t, err)
}

func encodeSample(t *testing.T) []byte {
	t.Helper()
	tbl := mustTable(t,
		table.NewNumericColumn("v", noisyValues(200, 2)),
		table.NewStringColumn("s", strings.Split(strings.Repeat("x,y,", 100), ",")[:200]),
	)
	blob, err := Encode(tbl, codec.DefaultParams())
	require.NoError(t, err)

	return blob
}

func TestDecode_Corruption(t *testing.T) {
	blob := encodeSample(t)

	t.Run("bad magic", func(t *testing.T) {
		_, err := Decode([]byte("id,amount\n1,2\n"))
		require.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := Decode(blob[:10])
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[3] = 9
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), blob...)
		bad[len(bad)-1] ^= 0xFF
		_, err := Decode(bad)
		require.ErrorIs(t, err, ErrChecksum)
	})

	t.Run("truncated body", func(t *testing.T) {
		_, err := Decode(blob[:len(blob)-5])
		require.Error(t, err)
	})
}

func TestDecode_CorruptBodyNeverPanics(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumericColumn("v", noisyValues(50, 4)),
		table.NewStringColumn("s", strings.Split(strings.Repeat("a,b,", 25), ",")[:50]),
	)
	p := codec.DefaultParams()
	p.Compression = format.CompressionNone
	blob, err := Encode(tbl, p)
	require.NoError(t, err)

	for i := HeaderSize; i < len(blob); i++ {
		bad := append([]byte(nil), blob...)
		bad[i] ^= 0x5A
		h, err := ParseHeader(bad)
		require.NoError(t, err)
		h.Checksum = checksumOf(bad[HeaderSize:])
		copy(bad, h.Bytes())

		require.NotPanics(t, func() { _, _ = Decode(bad) }, fmt.Sprintf("offset %d", i))
	}
}

func TestIsBlob(t *testing.T) {
	require.True(t, IsBlob([]byte("SMP\x01rest")))
	require.False(t, IsBlob([]byte("SMP\x02")))
	require.False(t, IsBlob([]byte("SM")))
	require.False(t, IsBlob([]byte("a,b,c\n")))
}

func TestStats(t *testing.T) {
	tbl := mustTable(t, table.NewStringColumn("region", strings.Split(strings.Repeat("eu,us,", 500), ",")[:1000]))

	p := codec.DefaultParams()
	blob, err := Encode(tbl, p)
	require.NoError(t, err)

	stats, err := Stats(blob)
	require.NoError(t, err)
	require.Equal(t, format.CompressionZstd, stats.Algorithm)
	require.Equal(t, int64(len(blob)-HeaderSize), stats.CompressedSize)
	require.Less(t, stats.CompressionRatio(), 1.0)

	_, err = Stats([]byte("a,b\n"))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestCodecAndBackend(t *testing.T) {
	tbl := mustTable(t,
		table.NewNumericColumn("amount", noisyValues(100, 8)),
		table.NewStringColumn("name", strings.Split(strings.Repeat("a,b,", 50), ",")[:100]),
	)
	tbl.SetAttr("source", "csv")

	t.Run("in-process", func(t *testing.T) {
		c := NewCodec()
		blob, err := c.Encode(context.Background(), tbl, codec.DefaultParams())
		require.NoError(t, err)
		got, err := c.Decode(context.Background(), blob)
		require.NoError(t, err)
		require.Equal(t, tbl.Names(), got.Names())

		_, err = c.Decode(context.Background(), []byte("garbage"))
		require.True(t, codec.IsCodecError(err))
	})

	t.Run("adapter", func(t *testing.T) {
		a, err := codec.NewAdapter(NewBackend(), codec.WithTempDir(t.TempDir()))
		require.NoError(t, err)

		blob, err := a.Encode(context.Background(), tbl, codec.DefaultParams())
		require.NoError(t, err)
		require.True(t, IsBlob(blob))

		got, err := a.Decode(context.Background(), blob)
		require.NoError(t, err)
		require.Equal(t, tbl.Names(), got.Names())
		require.Equal(t, "csv", got.Attrs["source"])
	})

	t.Run("backend keeps text columns", func(t *testing.T) {
		zips := mustTable(t, table.NewStringColumn("zip", []string{"00037", "00100", "1.50"}))
		src := filepath.Join(t.TempDir(), "table.csv")
		data, err := zips.MarshalCSV()
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(src, data, 0o600))

		attrs := map[string]string{codec.TextColumnsAttr: `["zip"]`}
		blob, err := NewBackend().EncodeFile(context.Background(), src, attrs, codec.DefaultParams())
		require.NoError(t, err)

		got, err := Decode(blob)
		require.NoError(t, err)
		require.Equal(t, format.ColumnString, got.Columns[0].Type)
		require.Equal(t, []string{"00037", "00100", "1.50"}, got.Columns[0].Strings)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewCodec().Encode(ctx, tbl, codec.DefaultParams())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildCodebook(t *testing.T) {
	require.Nil(t, buildCodebook([]float64{math.NaN()}, 4))
	require.Equal(t, []float64{1, 2, 3}, buildCodebook([]float64{3, 1, 2, 1, math.Inf(1)}, 4))

	cb := buildCodebook(noisyValues(1000, 12), 8)
	require.LessOrEqual(t, len(cb), 8)
	require.IsIncreasing(t, cb)
}

func TestNearest(t *testing.T) {
	c := []float64{0, 10, 20}
	require.Equal(t, 0, nearest(c, -5))
	require.Equal(t, 0, nearest(c, 5))
	require.Equal(t, 1, nearest(c, 6))
	require.Equal(t, 2, nearest(c, 100))
	require.Equal(t, 1, nearest(c, 10))
}

func checksumOf(b []byte) uint64 {
	return hash.Checksum(b)
}
