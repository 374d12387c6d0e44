package tensor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dudu/aivision/internal/colorspace"
	"github.com/dudu/aivision/internal/imagebuf"
)

// Normalization maps 8-bit channel values to model input values.
type Normalization int

const (
	// NormUnit scales to [0,1]: x/255.
	NormUnit Normalization = iota
	// NormMeanScale is (x-127)/128.
	NormMeanScale
	// NormSymmetric scales to [-1,1]: x/127.5-1.
	NormSymmetric
	// NormLuminance strips chroma through Lab (a=b=0) and scales to [0,1].
	NormLuminance
	// NormHalfOffset is x/255-0.5.
	NormHalfOffset
	// NormInsightFace is (x-127.5)/128.
	NormInsightFace
	// NormImageNet applies the ImageNet per-channel mean and std to x/255.
	NormImageNet
)

var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

func (n Normalization) String() string {
	switch n {
	case NormUnit:
		return "unit"
	case NormMeanScale:
		return "mean-scale"
	case NormSymmetric:
		return "symmetric"
	case NormLuminance:
		return "luminance"
	case NormHalfOffset:
		return "half-offset"
	case NormInsightFace:
		return "insightface"
	case NormImageNet:
		return "imagenet"
	default:
		return fmt.Sprintf("Normalization(%d)", int(n))
	}
}

// Normalize maps an 8-bit value of channel c to the model domain.
func (n Normalization) Normalize(c int, v float32) float32 {
	switch n {
	case NormMeanScale:
		return (v - 127) / 128
	case NormSymmetric:
		return v/127.5 - 1
	case NormHalfOffset:
		return v/255 - 0.5
	case NormInsightFace:
		return (v - 127.5) / 128
	case NormImageNet:
		return (v/255 - imageNetMean[c]) / imageNetStd[c]
	default:
		return v / 255
	}
}

// Denormalize is the inverse of Normalize. The result is in 8-bit units but
// not yet clamped.
func (n Normalization) Denormalize(c int, v float32) float32 {
	switch n {
	case NormMeanScale:
		return v*128 + 127
	case NormSymmetric:
		return (v + 1) * 127.5
	case NormHalfOffset:
		return (v + 0.5) * 255
	case NormInsightFace:
		return v*128 + 127.5
	case NormImageNet:
		return (v*imageNetStd[c] + imageNetMean[c]) * 255
	default:
		return v * 255
	}
}

// Spec describes how a model wants its image input packed.
type Spec struct {
	// Width and Height are the tensor spatial size. Zero keeps the image size.
	Width, Height int
	Layout        Layout
	Norm          Normalization
	// Letterbox keeps the aspect ratio: the image is scaled to fit and the
	// remainder (right and bottom) is left at tensor value 0.
	Letterbox bool
}

// Frame records how the source image was mapped into the tensor.
type Frame struct {
	// Source is the original image size.
	Source image.Point
	// Content is the size of the resized image inside the tensor.
	Content image.Point
	// Size is the tensor spatial size.
	Size image.Point
	// Scale is Content/Source for letterboxed input (uniform on both axes).
	Scale float32
}

// ToSource maps a point in tensor pixels back to source pixels.
func (f Frame) ToSource(x, y float32) (float32, float32) {
	sx := float32(f.Source.X) / float32(f.Content.X)
	sy := float32(f.Source.Y) / float32(f.Content.Y)
	return x * sx, y * sy
}

// ToTensor maps a point in source pixels into tensor pixels.
func (f Frame) ToTensor(x, y float32) (float32, float32) {
	sx := float32(f.Content.X) / float32(f.Source.X)
	sy := float32(f.Content.Y) / float32(f.Source.Y)
	return x * sx, y * sy
}

// ImageToTensor resizes img per spec and packs it into a [1,3,H,W] or
// [1,H,W,3] tensor.
func ImageToTensor(img image.Image, spec Spec) (*Tensor, Frame, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, Frame{}, imagebuf.ErrEmpty
	}
	if spec.Layout != LayoutNCHW && spec.Layout != LayoutNHWC {
		return nil, Frame{}, fmt.Errorf("%w: input layout must be NCHW or NHWC, got %s", ErrShape, spec.Layout)
	}

	frame := Frame{Source: b.Size(), Size: image.Pt(spec.Width, spec.Height)}
	if frame.Size.X <= 0 || frame.Size.Y <= 0 {
		frame.Size = b.Size()
	}
	frame.Content = frame.Size
	frame.Scale = 1
	if spec.Letterbox {
		frame.Content, frame.Scale = fit(b.Size(), frame.Size)
	}

	src := imagebuf.AsNRGBA(img)
	if frame.Content != b.Size() {
		src = imagebuf.Resize(src, frame.Content.X, frame.Content.Y)
	}

	var t *Tensor
	if spec.Layout == LayoutNHWC {
		t = New(1, int64(frame.Size.Y), int64(frame.Size.X), 3)
	} else {
		t = New(1, 3, int64(frame.Size.Y), int64(frame.Size.X))
	}
	p, _ := NewPlane(t, spec.Layout)

	for y := 0; y < frame.Content.Y; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < frame.Content.X; x++ {
			px := row[x*4 : x*4+3]
			if spec.Norm == NormLuminance {
				gr, gg, gb := colorspace.Luminance(float32(px[0])/255, float32(px[1])/255, float32(px[2])/255)
				p.Set(0, y, x, gr)
				p.Set(1, y, x, gg)
				p.Set(2, y, x, gb)
				continue
			}
			for c := 0; c < 3; c++ {
				p.Set(c, y, x, spec.Norm.Normalize(c, float32(px[c])))
			}
		}
	}
	return t, frame, nil
}

// fit returns the largest size with src's aspect ratio that fits in dst.
func fit(src, dst image.Point) (image.Point, float32) {
	scale := float32(dst.X) / float32(src.X)
	if sy := float32(dst.Y) / float32(src.Y); sy < scale {
		scale = sy
	}
	w := int(float32(src.X)*scale + 0.5)
	h := int(float32(src.Y)*scale + 0.5)
	w = min(max(w, 1), dst.X)
	h = min(max(h, 1), dst.Y)
	return image.Pt(w, h), scale
}

// TensorToImage unpacks a whole-image output tensor. Channels are inverse
// normalized and clamped to [0,255]; a single-channel tensor becomes gray.
// A non-zero out size resamples the result.
func TensorToImage(t *Tensor, out image.Point, layout Layout, norm Normalization) (*image.NRGBA, error) {
	p, err := NewPlane(t, layout)
	if err != nil {
		return nil, err
	}
	if p.C != 3 && p.C != 1 {
		return nil, fmt.Errorf("%w: want 1 or 3 channels, got %d in %v", ErrShape, p.C, t.Shape)
	}

	img := image.NewNRGBA(image.Rect(0, 0, p.W, p.H))
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var px color.NRGBA
			px.A = 255
			if p.C == 1 {
				v := ToByte(norm.Denormalize(0, p.At(0, y, x)))
				px.R, px.G, px.B = v, v, v
			} else {
				px.R = ToByte(norm.Denormalize(0, p.At(0, y, x)))
				px.G = ToByte(norm.Denormalize(1, p.At(1, y, x)))
				px.B = ToByte(norm.Denormalize(2, p.At(2, y, x)))
			}
			img.SetNRGBA(x, y, px)
		}
	}

	if out.X > 0 && out.Y > 0 && (out.X != p.W || out.Y != p.H) {
		return imagebuf.Resize(img, out.X, out.Y), nil
	}
	return img, nil
}

// ToByte clamps v to [0,255] and rounds it to the nearest integer.
func ToByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
