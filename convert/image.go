package convert

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/arloliu/sempress-lfs/table"
)

const (
	imageModeRGB  = "RGB"
	imageModeRGBA = "RGBA"
)

// pngToTable turns every pixel into a row (x, y, r, g, b[, alpha]). The alpha
// column is only present for images that are not fully opaque.
func pngToTable(data []byte) (*table.Table, Metadata, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	mode := imageModeRGB
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		mode = imageModeRGBA
	}

	n := width * height
	xs, ys := make([]float64, 0, n), make([]float64, 0, n)
	rs, gs, bs, as := make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	for y := range height {
		for x := range width {
			c, _ := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			xs = append(xs, float64(x))
			ys = append(ys, float64(y))
			rs = append(rs, float64(c.R))
			gs = append(gs, float64(c.G))
			bs = append(bs, float64(c.B))
			as = append(as, float64(c.A))
		}
	}

	cols := []*table.Column{
		table.NewNumericColumn("x", xs),
		table.NewNumericColumn("y", ys),
		table.NewNumericColumn("r", rs),
		table.NewNumericColumn("g", gs),
		table.NewNumericColumn("b", bs),
	}
	if mode == imageModeRGBA {
		cols = append(cols, table.NewNumericColumn("alpha", as))
	}

	t, err := table.New(cols...)
	if err != nil {
		return nil, Metadata{}, err
	}

	return t, Metadata{Width: width, Height: height, Mode: mode}, nil
}

// tableToPNG paints the pixel rows onto a blank image of the recorded size.
// Rows outside the image are ignored and channels are clipped to [0, 255].
func tableToPNG(t *table.Table, m Metadata) ([]byte, error) {
	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", m.Width, m.Height)
	}

	channel := func(name string) ([]float64, error) {
		col, ok := t.Column(name)
		if !ok || col.Floats == nil {
			return nil, fmt.Errorf("pixel table has no numeric %q column", name)
		}

		return col.Floats, nil
	}

	var errs []error
	cols := map[string][]float64{}
	names := []string{"x", "y", "r", "g", "b"}
	if m.Mode == imageModeRGBA {
		names = append(names, "alpha")
	}
	for _, name := range names {
		values, err := channel(name)
		errs = append(errs, err)
		cols[name] = values
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for row := range t.Rows() {
		x, y := cols["x"][row], cols["y"][row]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		px, py := int(math.Round(x)), int(math.Round(y))
		if px < 0 || px >= m.Width || py < 0 || py >= m.Height {
			continue
		}

		c := color.NRGBA{
			R: clipChannel(cols["r"][row]),
			G: clipChannel(cols["g"][row]),
			B: clipChannel(cols["b"][row]),
			A: 255,
		}
		if alpha, ok := cols["alpha"]; ok {
			c.A = clipChannel(alpha[row])
		}
		img.SetNRGBA(px, py, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func clipChannel(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}

	return uint8(math.Round(min(max(v, 0), 255)))
}
