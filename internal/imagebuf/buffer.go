package imagebuf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	"image/png"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrEmpty is returned for images with no pixels.
var ErrEmpty = errors.New("empty image")

// Decode decodes PNG, JPEG, GIF, BMP or WebP bytes into an NRGBA image.
func Decode(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmpty
	}
	return imaging.Clone(img), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// AsNRGBA returns img as an NRGBA image anchored at the origin. When img
// already is one it is returned as is and must be treated as read-only.
func AsNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

// Clone returns a private copy of img.
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Resize resamples img to w x h with a bilinear filter.
func Resize(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// ResizeGray resamples a single-channel image to w x h with a bilinear filter.
func ResizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// Crop copies the part of img inside r. r is clipped to the image bounds.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r)
}

// Paste copies src into dst with its top-left corner at pt.
func Paste(dst *image.NRGBA, src image.Image, pt image.Point) {
	sb := src.Bounds()
	draw.Draw(dst, image.Rectangle{Min: pt, Max: pt.Add(sb.Size())}, src, sb.Min, draw.Src)
}

// Blur applies a Gaussian blur with standard deviation sigma.
func Blur(img image.Image, sigma float64) *image.NRGBA {
	if sigma <= 0 {
		return imaging.Clone(img)
	}
	return gaussianBlur(img, sigma)
}

// BoxBlur applies a box blur of the given radius.
func BoxBlur(img image.Image, radius float64) *image.NRGBA {
	if radius <= 0 {
		return imaging.Clone(img)
	}
	return imaging.Clone(blur.Box(img, radius))
}

// DrawRect strokes the outline of r onto dst. The stroke is centred on the
// rectangle edges and clipped to the image.
func DrawRect(dst *image.NRGBA, r image.Rectangle, thickness int, c color.Color) {
	if thickness < 1 {
		thickness = 1
	}
	lo := thickness / 2
	hi := thickness - lo
	src := image.NewUniform(c)

	outer := image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi)
	bands := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, r.Min.Y+hi), // top
		image.Rect(outer.Min.X, r.Max.Y-lo, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, outer.Min.Y, r.Min.X+hi, outer.Max.Y), // left
		image.Rect(r.Max.X-lo, outer.Min.Y, outer.Max.X, outer.Max.Y), // right
	}
	for _, band := range bands {
		draw.Draw(dst, band.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}
