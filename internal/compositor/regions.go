package compositor

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/dudu/aivision/internal/imagebuf"
)

// BlurStyle selects the anonymization filter.
type BlurStyle int

const (
	BlurGaussian BlurStyle = iota
	BlurBox
)

func (s BlurStyle) String() string {
	if s == BlurBox {
		return "box"
	}
	return "gaussian"
}

// ParseBlurStyle accepts "gaussian" or "box". Empty means gaussian.
func ParseBlurStyle(s string) (BlurStyle, error) {
	switch strings.ToLower(s) {
	case "", "gaussian":
		return BlurGaussian, nil
	case "box":
		return BlurBox, nil
	}
	return BlurGaussian, fmt.Errorf("unknown blur style %q", s)
}

// SafeSigma caps sigma to a quarter of the shorter side of r, never below 1.
func SafeSigma(sigma float64, r image.Rectangle) float64 {
	limit := float64(min(r.Dx(), r.Dy()) / 4)
	s := min(sigma, limit)
	if s < 1 {
		s = 1
	}
	return s
}

// BlurRegions returns a copy of img with every region blurred. Regions
// are clipped to the image; slivers one pixel wide or narrower are skipped.
// Regions are applied in order, so overlapping regions are blurred twice.
func BlurRegions(img image.Image, regions []image.Rectangle, sigma float64, style BlurStyle) *image.NRGBA {
	out := imagebuf.Clone(img)
	for _, r := range regions {
		roi := r.Intersect(out.Bounds())
		if roi.Dx() <= 1 || roi.Dy() <= 1 {
			continue
		}
		s := SafeSigma(sigma, roi)

		part := imagebuf.Crop(out, roi)
		var blurred *image.NRGBA
		if style == BlurBox {
			blurred = imagebuf.BoxBlur(part, s)
		} else {
			blurred = imagebuf.Blur(part, s)
		}
		imagebuf.Paste(out, blurred, roi.Min)
	}
	return out
}

// DrawBoxes outlines every region on a copy of img.
func DrawBoxes(img image.Image, regions []image.Rectangle, thickness int, c color.Color) *image.NRGBA {
	out := imagebuf.Clone(img)
	for _, r := range regions {
		imagebuf.DrawRect(out, r, thickness, c)
	}
	return out
}
