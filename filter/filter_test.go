package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arloliu/sempress-lfs/codec"
	"github.com/arloliu/sempress-lfs/codec/smp"
	"github.com/arloliu/sempress-lfs/settings"
	"github.com/arloliu/sempress-lfs/table"
)

type fakeCodec struct {
	blob      []byte
	encodeErr error
	decoded   *table.Table
	decodeErr error
	panics    bool

	params  codec.Params
	encoded *table.Table
}

func (f *fakeCodec) Encode(_ context.Context, t *table.Table, p codec.Params) ([]byte, error) {
	f.params, f.encoded = p, t
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}

	return f.blob, nil
}

func (f *fakeCodec) Decode(context.Context, []byte) (*table.Table, error) {
	if f.panics {
		panic("decoder exploded")
	}
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}

	return f.decoded, nil
}

func csvInput(rows int) []byte {
	var b strings.Builder
	b.WriteString("id,region,amount\n")
	for i := range rows {
		fmt.Fprintf(&b, "%d,%s,%d.5\n", i, []string{"eu", "us", "apac"}[i%3], i%40)
	}

	return []byte(b.String())
}

func testSettings() settings.Settings {
	s := settings.Default()
	s.MinSizeBytes = 64

	return s
}

func newFilter(t *testing.T, c codec.Codec, opts ...Option) *Filter {
	t.Helper()

	f, err := New(testSettings(), c, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)

	return f
}

func clean(t *testing.T, f *Filter, input []byte, filename string) []byte {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, f.Clean(context.Background(), bytes.NewReader(input), &out, filename))

	return out.Bytes()
}

func smudge(t *testing.T, f *Filter, input []byte, filename string) []byte {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, f.Smudge(context.Background(), bytes.NewReader(input), &out, filename))

	return out.Bytes()
}

func TestNew(t *testing.T) {
	_, err := New(testSettings(), nil, nil)
	require.Error(t, err)

	_, err = New(testSettings(), &fakeCodec{}, nil, WithDetection(settings.DetectionPolicy(9)))
	require.Error(t, err)

	f, err := New(testSettings(), &fakeCodec{}, nil, WithDetection(settings.DetectSniff))
	require.NoError(t, err)
	require.Equal(t, settings.DetectSniff, f.detection)
}

func TestCleanSmudge_RoundTrip(t *testing.T) {
	f := newFilter(t, smp.NewCodec())
	input := csvInput(5000)

	blob := clean(t, f, input, "data/sales.csv")
	require.True(t, smp.IsBlob(blob))
	require.Less(t, len(blob), len(input))

	restored := smudge(t, f, blob, "data/sales.csv")
	require.Equal(t, string(input), string(restored))
}

func TestCleanSmudge_KeepsNumericLookingText(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := range 2000 {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"zip":"%05d","label":"%d.50"}`, i, i%100)
	}
	b.WriteString("]")
	input := []byte(b.String())

	adapter, err := codec.NewAdapter(smp.NewBackend(), codec.WithTempDir(t.TempDir()))
	require.NoError(t, err)

	tests := []struct {
		name  string
		codec codec.Codec
	}{
		{name: "in-process codec", codec: smp.NewCodec()},
		{name: "file backend via adapter", codec: adapter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			s.MinCompressionRatio = 1.01
			f, err := New(s, tt.codec, zaptest.NewLogger(t))
			require.NoError(t, err)

			blob := clean(t, f, input, "zips.json")
			require.True(t, smp.IsBlob(blob))

			out := string(smudge(t, f, blob, "zips.json"))
			require.Contains(t, out, `"zip":"00037"`)
			require.Contains(t, out, `"label":"1.50"`)
			require.NotContains(t, out, `"zip":37`)
			require.NotContains(t, out, `"zip":"37"`)
		})
	}
}

func TestClean_Passthrough(t *testing.T) {
	tests := []struct {
		name  string
		codec *fakeCodec
		input []byte
	}{
		{"below size", &fakeCodec{blob: []byte("x")}, []byte("a,b\n1,2\n")},
		{"codec error", &fakeCodec{encodeErr: errors.New("boom")}, csvInput(100)},
		{"ratio not met", &fakeCodec{blob: bytes.Repeat([]byte("x"), 4000)}, csvInput(100)},
		{"unparseable", &fakeCodec{blob: []byte("x")}, []byte("a,b\n1,2,3\n" + strings.Repeat("4,5\n", 40))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := clean(t, newFilter(t, tt.codec), tt.input, "t.csv")
			require.Equal(t, tt.input, out)
		})
	}
}

func TestClean_EmptyInput(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f, err := New(testSettings(), &fakeCodec{}, zap.New(core))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, f.Clean(context.Background(), strings.NewReader(""), &out, "t.csv"))
	require.Zero(t, out.Len())
	require.Equal(t, 1, logs.FilterMessage("nothing to filter").Len())
}

func TestClean_AttachesMetadataAndLocksImageCoordinates(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range 64 {
		img.SetNRGBA(i%8, i/8, color.NRGBA{R: uint8(i), G: 1, B: 2, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	s := testSettings()
	s.MinSizeBytes = 0
	fc := &fakeCodec{blob: []byte(smp.Magic + "\x01blob")}
	f, err := New(s, fc, zaptest.NewLogger(t))
	require.NoError(t, err)

	out := clean(t, f, buf.Bytes(), "pics/a.png")
	require.Equal(t, fc.blob, out)

	require.Contains(t, fc.params.Locked, "x")
	require.Contains(t, fc.params.Locked, "y")
	require.Contains(t, fc.encoded.Attrs["sempress.format"], `"format":"image"`)
}

func TestSmudge_Passthrough(t *testing.T) {
	plain := []byte("id,amount\n1,2\n")
	corrupt := []byte(smp.Magic + "\x01garbage")

	t.Run("plain", func(t *testing.T) {
		require.Equal(t, plain, smudge(t, newFilter(t, &fakeCodec{}), plain, "t.csv"))
	})
	t.Run("corrupt blob", func(t *testing.T) {
		require.Equal(t, corrupt, smudge(t, newFilter(t, smp.NewCodec()), corrupt, "t.csv"))
	})
	t.Run("decoder error", func(t *testing.T) {
		f := newFilter(t, &fakeCodec{decodeErr: errors.New("boom")})
		require.Equal(t, corrupt, smudge(t, f, corrupt, "t.csv"))
	})
	t.Run("decoder panic", func(t *testing.T) {
		f := newFilter(t, &fakeCodec{panics: true})
		require.Equal(t, corrupt, smudge(t, f, corrupt, "t.csv"))
	})
	t.Run("sniff sees csv", func(t *testing.T) {
		wide := []byte("a,b,c,d,e,f,g\n1,2,3,4,5,6,7\n")
		f := newFilter(t, &fakeCodec{decodeErr: errors.New("must not decode")}, WithDetection(settings.DetectSniff))
		require.Equal(t, wide, smudge(t, f, wide, "t.csv"))
	})
	t.Run("empty", func(t *testing.T) {
		require.Empty(t, smudge(t, newFilter(t, &fakeCodec{}), nil, "t.csv"))
	})
}

func TestSmudge_FormatFromFilename(t *testing.T) {
	tbl, err := table.New(
		table.NewNumericColumn("id", []float64{1, 2}),
		table.NewStringColumn("name", []string{"a", "b"}),
	)
	require.NoError(t, err)

	f := newFilter(t, &fakeCodec{decoded: tbl})
	out := smudge(t, f, []byte(smp.Magic+"\x01blob"), "records.json")
	require.JSONEq(t, `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`, string(out))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteErrorsAreReturned(t *testing.T) {
	f := newFilter(t, &fakeCodec{})
	input := []byte("a,b\n1,2\n")

	require.Error(t, f.Clean(context.Background(), bytes.NewReader(input), failingWriter{}, "t.csv"))
	require.Error(t, f.Smudge(context.Background(), bytes.NewReader(input), failingWriter{}, "t.csv"))
}
