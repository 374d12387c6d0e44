package imagebuf

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createInMemoryImage creates a solid colour test image.
func createInMemoryImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image whose red channel encodes x and green encodes y.
func createPatternImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := createPatternImage(40, 30)

	data, err := EncodePNG(src)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, src.Pix, got.Pix)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestResize(t *testing.T) {
	src := createInMemoryImage(100, 50, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	got := Resize(src, 40, 20)
	assert.Equal(t, 40, got.Bounds().Dx())
	assert.Equal(t, 20, got.Bounds().Dy())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, got.NRGBAAt(20, 10))
}

func TestResize_SameSizeCopies(t *testing.T) {
	src := createPatternImage(8, 8)
	got := Resize(src, 8, 8)

	assert.Equal(t, src.Pix, got.Pix)
	got.Pix[0] = 99
	assert.NotEqual(t, src.Pix[0], got.Pix[0], "resize must not alias its input")
}

func TestResizeGray_Constant(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	got := ResizeGray(src, 37, 23)
	require.Equal(t, image.Rect(0, 0, 37, 23), got.Bounds())
	for _, v := range got.Pix {
		require.Equal(t, uint8(255), v)
	}
}

func TestCropAndPaste(t *testing.T) {
	src := createPatternImage(50, 50)

	part := Crop(src, image.Rect(10, 20, 30, 25))
	assert.Equal(t, image.Rect(0, 0, 20, 5), part.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 128, A: 255}, part.NRGBAAt(0, 0))

	dst := createInMemoryImage(50, 50, color.NRGBA{A: 255})
	Paste(dst, part, image.Pt(10, 20))
	assert.Equal(t, src.NRGBAAt(15, 22), dst.NRGBAAt(15, 22))
	assert.Equal(t, color.NRGBA{A: 255}, dst.NRGBAAt(5, 5))
}

func TestCrop_ClipsToBounds(t *testing.T) {
	src := createPatternImage(20, 20)
	part := Crop(src, image.Rect(15, 15, 40, 40))
	assert.Equal(t, 5, part.Bounds().Dx())
	assert.Equal(t, 5, part.Bounds().Dy())
}

func TestBlur_SmoothsEdge(t *testing.T) {
	src := createInMemoryImage(20, 20, color.NRGBA{A: 255})
	for y := 0; y < 20; y++ {
		for x := 10; x < 20; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	got := Blur(src, 2)
	edge := got.NRGBAAt(10, 10).R
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))
	assert.Equal(t, uint8(255), src.NRGBAAt(10, 10).R, "input must be untouched")
}

func TestBoxBlur_Uniform(t *testing.T) {
	src := createInMemoryImage(10, 10, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	got := BoxBlur(src, 2)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.InDelta(t, 100, int(got.NRGBAAt(5, 5).R), 1)
}

func TestDrawRect(t *testing.T) {
	dst := createInMemoryImage(30, 30, color.NRGBA{A: 255})
	red := color.NRGBA{R: 255, A: 255}

	DrawRect(dst, image.Rect(10, 10, 20, 20), 1, red)

	assert.Equal(t, red, dst.NRGBAAt(10, 10))
	assert.Equal(t, red, dst.NRGBAAt(15, 10))
	assert.Equal(t, red, dst.NRGBAAt(10, 15))
	assert.Equal(t, color.NRGBA{A: 255}, dst.NRGBAAt(15, 15), "interior stays untouched")
	assert.Equal(t, color.NRGBA{A: 255}, dst.NRGBAAt(5, 5))
}

func TestDrawRect_ClipsOutside(t *testing.T) {
	dst := createInMemoryImage(10, 10, color.NRGBA{A: 255})
	assert.NotPanics(t, func() {
		DrawRect(dst, image.Rect(-5, -5, 50, 50), 3, color.NRGBA{G: 255, A: 255})
	})
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"white", color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{"Green", color.NRGBA{G: 255, A: 255}},
		{"#1e90ff", color.NRGBA{R: 0x1e, G: 0x90, B: 0xff, A: 255}},
		{"102030", color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseColor("not-a-color")
	assert.Error(t, err)
}
