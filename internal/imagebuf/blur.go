//go:build !gocv

package imagebuf

import (
	"image"

	"github.com/disintegration/imaging"
)

func gaussianBlur(img image.Image, sigma float64) *image.NRGBA {
	return imaging.Blur(img, sigma)
}
