package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/tensor"
)

// MaskFromTensor converts a single-channel probability map into an 8-bit
// mask. Values below threshold become 0; the rest are scaled by 255 and
// clamped. Accepted shapes are [H,W], [1,H,W] and [1,1,H,W] / [1,H,W,1].
func MaskFromTensor(t *tensor.Tensor, threshold float32) (*image.Gray, error) {
	var w, h int
	switch len(t.Shape) {
	case 2:
		h, w = int(t.Shape[0]), int(t.Shape[1])
	case 3:
		if t.Shape[0] != 1 {
			return nil, fmt.Errorf("%w: want a single mask, got %v", tensor.ErrShape, t.Shape)
		}
		h, w = int(t.Shape[1]), int(t.Shape[2])
	case 4:
		p, err := tensor.NewPlane(t, tensor.LayoutAuto)
		if err != nil {
			return nil, err
		}
		if p.C != 1 {
			return nil, fmt.Errorf("%w: want 1 mask channel, got %v", tensor.ErrShape, t.Shape)
		}
		h, w = p.H, p.W
	default:
		return nil, fmt.Errorf("%w: unsupported mask shape %v", tensor.ErrShape, t.Shape)
	}
	if w <= 0 || h <= 0 || len(t.Data) < w*h {
		return nil, fmt.Errorf("%w: %d values for mask %v", tensor.ErrShape, len(t.Data), t.Shape)
	}

	// with one channel both layouts share the same memory order
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range t.Data[:w*h] {
		if v < threshold {
			v = 0
		}
		mask.Pix[i] = tensor.ToByte(v * 255)
	}
	return mask, nil
}

// ApplyMatte composites src through the model mask. The mask is thresholded
// then resized to the source size. With bg set, every pixel is blended
// src*alpha + bg*(1-alpha) and made opaque; otherwise the source color is
// kept and alpha replaces its transparency.
func ApplyMatte(src image.Image, mask *tensor.Tensor, threshold float32, bg *color.NRGBA) (*image.NRGBA, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, imagebuf.ErrEmpty
	}
	m, err := MaskFromTensor(mask, threshold)
	if err != nil {
		return nil, err
	}
	if m.Bounds().Size() != b.Size() {
		m = imagebuf.ResizeGray(m, b.Dx(), b.Dy())
	}

	in := imagebuf.AsNRGBA(src)
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srow := in.Pix[y*in.Stride:]
		drow := out.Pix[y*out.Stride:]
		mrow := m.Pix[y*m.Stride:]
		for x := 0; x < b.Dx(); x++ {
			s := srow[x*4 : x*4+4]
			d := drow[x*4 : x*4+4]
			if bg == nil {
				copy(d, s[:3])
				d[3] = mrow[x]
				continue
			}
			alpha := float32(mrow[x]) / 255
			d[0] = blend(s[0], bg.R, alpha)
			d[1] = blend(s[1], bg.G, alpha)
			d[2] = blend(s[2], bg.B, alpha)
			d[3] = 255
		}
	}
	return out, nil
}

func blend(fg, bg uint8, alpha float32) uint8 {
	return tensor.ToByte(float32(fg)*alpha + float32(bg)*(1-alpha))
}
