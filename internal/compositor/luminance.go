package compositor

import (
	"fmt"
	"image"

	"github.com/dudu/aivision/internal/colorspace"
	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/tensor"
)

// TransplantLuminance recolors orig with the predicted Lab chroma in ab.
// Each output pixel keeps L from the original pixel and takes (a, b) from
// the nearest model cell, found by truncating x/origW*modelW (same for y).
// ab is [1,2,H,W] when its second dim is 2, otherwise [1,H,W,2].
func TransplantLuminance(orig image.Image, ab *tensor.Tensor) (*image.NRGBA, error) {
	b := orig.Bounds()
	if b.Empty() {
		return nil, imagebuf.ErrEmpty
	}
	if len(ab.Shape) != 4 {
		return nil, fmt.Errorf("%w: chroma output must be 4-D, got %v", tensor.ErrShape, ab.Shape)
	}

	layout := tensor.LayoutNHWC
	if ab.Shape[1] == 2 {
		layout = tensor.LayoutNCHW
	}
	p, err := tensor.NewPlane(ab, layout)
	if err != nil {
		return nil, err
	}
	if p.C != 2 {
		return nil, fmt.Errorf("%w: want 2 chroma channels, got %v", tensor.ErrShape, ab.Shape)
	}

	src := imagebuf.AsNRGBA(orig)
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		my := clampIndex(int(float32(y)/float32(h)*float32(p.H)), p.H)
		srow := src.Pix[y*src.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			mx := clampIndex(int(float32(x)/float32(w)*float32(p.W)), p.W)

			px := srow[x*4 : x*4+4]
			l, _, _ := colorspace.RGBToLab(float32(px[0])/255, float32(px[1])/255, float32(px[2])/255)
			r, g, bl := colorspace.LabToRGB(l, p.At(0, my, mx), p.At(1, my, mx))

			d := drow[x*4 : x*4+4]
			d[0] = tensor.ToByte(r * 255)
			d[1] = tensor.ToByte(g * 255)
			d[2] = tensor.ToByte(bl * 255)
			d[3] = 255
		}
	}
	return out, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
