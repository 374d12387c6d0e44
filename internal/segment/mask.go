package segment

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/tensor"
)

// Foreground is the lowest probability byte counted as inside a mask
// (a logit of 0).
const Foreground = 128

// renderMasks converts [1,K,H,W] mask logits into K probability masks at
// source resolution.
func (s *Session) renderMasks(t *tensor.Tensor) ([]*image.Gray, error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: want [1,K,H,W] masks, got %v", tensor.ErrShape, t.Shape)
	}
	k, h, w := int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	if len(t.Data) != k*h*w {
		return nil, fmt.Errorf("%w: %d values for %v", tensor.ErrShape, len(t.Data), t.Shape)
	}

	frame := s.emb.frame
	valid := image.Rect(0, 0, w, h)
	if s.variant.LowRes {
		// only the letterbox content carries the image
		cw := int(math.Ceil(float64(frame.Content.X) * float64(w) / float64(frame.Size.X)))
		ch := int(math.Ceil(float64(frame.Content.Y) * float64(h) / float64(frame.Size.Y)))
		valid = image.Rect(0, 0, min(max(cw, 1), w), min(max(ch, 1), h))
	}

	masks := make([]*image.Gray, k)
	for i := range masks {
		logits := t.Data[i*h*w : (i+1)*h*w]
		full := image.NewGray(image.Rect(0, 0, w, h))
		for j, v := range logits {
			full.Pix[j] = tensor.ToByte(sigmoid(v) * 255)
		}
		m := full.SubImage(valid).(*image.Gray)
		if valid.Size() != frame.Source {
			m = imagebuf.ResizeGray(m, frame.Source.X, frame.Source.Y)
		}
		masks[i] = m
	}
	return masks, nil
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

// Overlay paints c where m is foreground and leaves the rest transparent.
func Overlay(m *image.Gray, c color.NRGBA) *image.NRGBA {
	b := m.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if m.GrayAt(b.Min.X+x, b.Min.Y+y).Y >= Foreground {
				out.SetNRGBA(x, y, c)
			}
		}
	}
	return out
}

// Coverage returns the fraction of foreground pixels in m.
func Coverage(m *image.Gray) float64 {
	b := m.Bounds()
	if b.Empty() {
		return 0
	}
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.GrayAt(x, y).Y >= Foreground {
				n++
			}
		}
	}
	return float64(n) / float64(b.Dx()*b.Dy())
}

// PointFromRatio converts a click given as a fraction of the displayed image
// into source pixels. ok is false when the click is outside the image.
func PointFromRatio(rx, ry float64, size image.Point) (x, y float32, ok bool) {
	if rx < 0 || rx > 1 || ry < 0 || ry > 1 {
		return 0, 0, false
	}
	return float32(rx * float64(size.X)), float32(ry * float64(size.Y)), true
}
