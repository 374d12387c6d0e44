package compositor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/aivision/internal/tensor"
)

func filled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func stripes(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if x%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestTransplantLuminance_ZeroChromaKeepsGray(t *testing.T) {
	for _, v := range []uint8{0, 17, 128, 200, 255} {
		src := filled(6, 4, color.NRGBA{R: v, G: v, B: v, A: 255})
		ab := tensor.New(1, 2, 3, 3)

		out, err := TransplantLuminance(src, ab)
		require.NoError(t, err)
		require.Equal(t, src.Bounds(), out.Bounds())
		px := out.NRGBAAt(3, 2)
		assert.LessOrEqual(t, absDiff(px.R, v), 1)
		assert.LessOrEqual(t, absDiff(px.G, v), 1)
		assert.LessOrEqual(t, absDiff(px.B, v), 1)
		assert.Equal(t, uint8(255), px.A)
	}
}

func TestTransplantLuminance_FloorRemap(t *testing.T) {
	src := filled(4, 1, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	// NCHW [1,2,2,2]: a = +40 in column 0, -40 in column 1
	ab, err := tensor.FromSlice([]float32{
		40, -40,
		40, -40,
		0, 0,
		0, 0,
	}, 1, 2, 2, 2)
	require.NoError(t, err)

	out, err := TransplantLuminance(src, ab)
	require.NoError(t, err)
	for x := 0; x < 4; x++ {
		px := out.NRGBAAt(x, 0)
		if x < 2 {
			assert.Greater(t, px.R, px.G, "x=%d should take column 0", x)
		} else {
			assert.Greater(t, px.G, px.R, "x=%d should take column 1", x)
		}
	}
}

func TestTransplantLuminance_ChannelLast(t *testing.T) {
	src := filled(5, 5, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	ab := tensor.New(1, 3, 3, 2)
	for i := 0; i < len(ab.Data); i += 2 {
		ab.Data[i+1] = 50 // b channel: towards yellow
	}
	out, err := TransplantLuminance(src, ab)
	require.NoError(t, err)
	px := out.NRGBAAt(2, 2)
	assert.Greater(t, px.R, px.B)
	assert.Greater(t, px.G, px.B)
}

func TestTransplantLuminance_BadShapes(t *testing.T) {
	src := filled(2, 2, color.NRGBA{A: 255})
	_, err := TransplantLuminance(src, tensor.New(2, 4, 4))
	assert.ErrorIs(t, err, tensor.ErrShape)
	_, err = TransplantLuminance(src, tensor.New(1, 4, 4, 4))
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func constMask(v float32, shape ...int64) *tensor.Tensor {
	m := tensor.New(shape...)
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func TestApplyMatte_OpaqueMaskIsIdentity(t *testing.T) {
	src := stripes(20, 10)
	out, err := ApplyMatte(src, constMask(1, 1, 1, 8, 8), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestApplyMatte_ThresholdClearsAlpha(t *testing.T) {
	src := filled(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	out, err := ApplyMatte(src, constMask(0.3, 1, 4, 4, 1), 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 0}, out.NRGBAAt(1, 1))

	out, err = ApplyMatte(src, constMask(0.3, 4, 4), 0.2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(77), out.NRGBAAt(1, 1).A)
}

func TestApplyMatte_Background(t *testing.T) {
	src := filled(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	bg := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	out, err := ApplyMatte(src, constMask(0, 1, 4, 4), 0, &bg)
	require.NoError(t, err)
	assert.Equal(t, bg, out.NRGBAAt(2, 2))

	out, err = ApplyMatte(src, constMask(1, 1, 4, 4), 0, &bg)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, out.NRGBAAt(2, 2))
}

func TestApplyMatte_BadMask(t *testing.T) {
	src := filled(4, 4, color.NRGBA{A: 255})
	_, err := ApplyMatte(src, tensor.New(1, 3, 4, 4), 0, nil)
	assert.ErrorIs(t, err, tensor.ErrShape)
	_, err = ApplyMatte(src, tensor.New(2, 4, 4), 0, nil)
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestMaskFromTensor_ShortChannelLastMask(t *testing.T) {
	m, err := tensor.FromSlice([]float32{0, 1, 0, 1, 0, 1, 1, 1, 1, 1}, 1, 2, 5, 1)
	require.NoError(t, err)

	mask, err := MaskFromTensor(m, 0)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 5, 2), mask.Bounds())
	assert.Equal(t, []uint8{0, 255, 0, 255, 0, 255, 255, 255, 255, 255}, mask.Pix)
}

func TestSafeSigma(t *testing.T) {
	tests := []struct {
		sigma float64
		r     image.Rectangle
		want  float64
	}{
		{15, image.Rect(0, 0, 100, 40), 10},
		{15, image.Rect(0, 0, 3, 3), 1},
		{2, image.Rect(0, 0, 100, 100), 2},
		{0.5, image.Rect(0, 0, 100, 100), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeSigma(tt.sigma, tt.r), "%v %v", tt.sigma, tt.r)
	}
}

func TestBlurRegions(t *testing.T) {
	for _, style := range []BlurStyle{BlurGaussian, BlurBox} {
		t.Run(style.String(), func(t *testing.T) {
			src := stripes(40, 40)
			before := append([]uint8(nil), src.Pix...)

			out := BlurRegions(src, []image.Rectangle{
				image.Rect(10, 10, 30, 30),
				image.Rect(35, 0, 36, 40), // one pixel wide: skipped
			}, 15, style)

			assert.Equal(t, before, src.Pix, "source must not change")
			inside := out.NRGBAAt(20, 20).R
			assert.Greater(t, inside, uint8(0))
			assert.Less(t, inside, uint8(255))
			assert.Equal(t, src.NRGBAAt(5, 5), out.NRGBAAt(5, 5))
			assert.Equal(t, src.NRGBAAt(35, 20), out.NRGBAAt(35, 20))
		})
	}
}

func TestBlurRegions_ClipsAndSkipsOutside(t *testing.T) {
	src := stripes(20, 20)
	out := BlurRegions(src, []image.Rectangle{
		image.Rect(100, 100, 140, 140),
		image.Rect(-10, -10, 1, 30),
	}, 15, BlurGaussian)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestDrawBoxes(t *testing.T) {
	src := filled(20, 20, color.NRGBA{A: 255})
	red := color.NRGBA{R: 255, A: 255}

	out := DrawBoxes(src, []image.Rectangle{image.Rect(5, 5, 15, 15)}, 3, red)
	assert.Equal(t, red, out.NRGBAAt(5, 10))
	assert.Equal(t, red, out.NRGBAAt(10, 14))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(10, 10))
	assert.Equal(t, color.NRGBA{A: 255}, src.NRGBAAt(5, 10))
}

func TestParseBlurStyle(t *testing.T) {
	s, err := ParseBlurStyle("Box")
	require.NoError(t, err)
	assert.Equal(t, BlurBox, s)
	s, err = ParseBlurStyle("")
	require.NoError(t, err)
	assert.Equal(t, BlurGaussian, s)
	_, err = ParseBlurStyle("pixelate")
	assert.Error(t, err)
}
