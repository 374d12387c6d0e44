//go:build gocv

package imagebuf

import (
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// gaussianBlur runs the blur through OpenCV. Conversion failures fall back to
// the pure Go filter so callers never see a gocv error.
func gaussianBlur(img image.Image, sigma float64) *image.NRGBA {
	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return imaging.Blur(img, sigma)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	// Kernel size derived from sigma
	gocv.GaussianBlur(src, &dst, image.Pt(0, 0), sigma, sigma, gocv.BorderReflect101)

	out, err := dst.ToImage()
	if err != nil {
		return imaging.Blur(img, sigma)
	}
	return imaging.Clone(out)
}
