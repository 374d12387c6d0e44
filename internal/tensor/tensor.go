// Package tensor marshals images into float32 model tensors and back.
package tensor

import (
	"fmt"

	"github.com/dudu/aivision/internal/errdefs"
)

var (
	// ErrShape reports a tensor whose shape does not fit the expected
	// contract. It is a configuration error.
	ErrShape = errdefs.ErrShape
	// ErrMissingOutput reports a model output that is absent by name.
	ErrMissingOutput = errdefs.ErrMissingOutput
)

// Layout is the axis order of a 4-D image tensor.
type Layout int

const (
	// LayoutAuto detects the layout from the tensor shape when decoding.
	LayoutAuto Layout = iota
	// LayoutNCHW is channel-first [N,C,H,W].
	LayoutNCHW
	// LayoutNHWC is channel-last [N,H,W,C].
	LayoutNHWC
)

func (l Layout) String() string {
	switch l {
	case LayoutNCHW:
		return "NCHW"
	case LayoutNHWC:
		return "NHWC"
	default:
		return "auto"
	}
}

// Tensor is a dense row-major float32 buffer with a fixed shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// New allocates a zeroed tensor of the given shape.
func New(shape ...int64) *Tensor {
	return &Tensor{
		Shape: append([]int64(nil), shape...),
		Data:  make([]float32, Elements(shape)),
	}
}

// FromSlice wraps data with shape. The data length must match the shape.
func FromSlice(data []float32, shape ...int64) (*Tensor, error) {
	if n := Elements(shape); int64(len(data)) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v (%d elements)", ErrShape, len(data), shape, n)
	}
	return &Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

// Elements returns the number of values described by shape.
func Elements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// Dims returns the shape as ints.
func (t *Tensor) Dims() []int {
	dims := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = int(d)
	}
	return dims
}

// DetectLayout reports the layout of a 4-D image tensor. The channel axis is
// the one holding 1, 2 or 3 channels. When axes 1 and 3 both qualify the
// smaller one is the channel axis, and axis 1 wins a tie, so [1,2,W,1] is a
// channel-last mask but [1,3,2,2] reads as channel-last too. Callers that
// know the layout should pass it instead.
func DetectLayout(shape []int64) (Layout, error) {
	if len(shape) != 4 {
		return LayoutAuto, fmt.Errorf("%w: want 4 dims, got %v", ErrShape, shape)
	}
	first, last := isChannelDim(shape[1]), isChannelDim(shape[3])
	switch {
	case first && last:
		if shape[3] < shape[1] {
			return LayoutNHWC, nil
		}
		return LayoutNCHW, nil
	case first:
		return LayoutNCHW, nil
	case last:
		return LayoutNHWC, nil
	}
	return LayoutAuto, fmt.Errorf("%w: no channel axis in %v", ErrShape, shape)
}

func isChannelDim(d int64) bool {
	return d >= 1 && d <= 3
}

// Plane gives indexed access to a 4-D image tensor regardless of layout.
type Plane struct {
	t       *Tensor
	layout  Layout
	C, H, W int
}

// NewPlane resolves layout (LayoutAuto detects it) and validates the batch
// dimension. Only batch index 0 is addressed.
func NewPlane(t *Tensor, layout Layout) (*Plane, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("%w: want 4 dims, got %v", ErrShape, t.Shape)
	}
	if layout == LayoutAuto {
		var err error
		if layout, err = DetectLayout(t.Shape); err != nil {
			return nil, err
		}
	}
	p := &Plane{t: t, layout: layout}
	switch layout {
	case LayoutNCHW:
		p.C, p.H, p.W = int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	case LayoutNHWC:
		p.H, p.W, p.C = int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	}
	if int64(len(t.Data)) < int64(p.C*p.H*p.W) {
		return nil, fmt.Errorf("%w: %d values for %v", ErrShape, len(t.Data), t.Shape)
	}
	return p, nil
}

// Layout returns the resolved layout.
func (p *Plane) Layout() Layout { return p.layout }

func (p *Plane) index(c, y, x int) int {
	if p.layout == LayoutNHWC {
		return (y*p.W+x)*p.C + c
	}
	return (c*p.H+y)*p.W + x
}

// At returns the value of channel c at (x,y).
func (p *Plane) At(c, y, x int) float32 {
	return p.t.Data[p.index(c, y, x)]
}

// Set writes the value of channel c at (x,y).
func (p *Plane) Set(c, y, x int, v float32) {
	p.t.Data[p.index(c, y, x)] = v
}
