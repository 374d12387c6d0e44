package detector

import (
	"fmt"
	"image"
	"strings"

	"github.com/dudu/aivision/internal/tensor"
)

// Scheme selects how raw model outputs are turned into candidate regions.
type Scheme int

const (
	// AnchorBox is SSD-style: per-anchor class scores plus corner boxes in
	// normalized [0,1] input coordinates.
	AnchorBox Scheme = iota + 1
	// CenterForm is YOLO-style: a [1,C,N] tensor whose rows are
	// cx, cy, w, h, score in model input pixels.
	CenterForm
	// StrideDistance is SCRFD-style: per-level scores, distance-to-edge boxes
	// and optional keypoints over feature maps of strides 8/16/32.
	StrideDistance
)

func (s Scheme) String() string {
	switch s {
	case AnchorBox:
		return "anchor-box"
	case CenterForm:
		return "center-form"
	case StrideDistance:
		return "stride-distance"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// ParseScheme resolves a scheme by its String name.
func ParseScheme(name string) (Scheme, error) {
	for _, s := range []Scheme{AnchorBox, CenterForm, StrideDistance} {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown decode scheme %q", name)
}

// DefaultIoUThreshold is the suppression threshold used when none is set.
func (s Scheme) DefaultIoUThreshold() float64 {
	switch s {
	case AnchorBox:
		return 0.3
	case CenterForm:
		return 0.45
	default:
		return 0.4
	}
}

// DefaultScoreThreshold is the confidence cut used when none is set.
func (s Scheme) DefaultScoreThreshold() float32 {
	if s == AnchorBox {
		return 0.7
	}
	return 0.5
}

// DefaultOutputs are the tensor names a scheme reads when the decoder is not
// given any.
func (s Scheme) DefaultOutputs() []string {
	switch s {
	case AnchorBox:
		return []string{"scores", "boxes"}
	case CenterForm:
		return []string{"output0"}
	case StrideDistance:
		return []string{
			"score_8", "score_16", "score_32",
			"bbox_8", "bbox_16", "bbox_32",
			"kps_8", "kps_16", "kps_32",
		}
	default:
		return nil
	}
}

// Geometry relates the model input to the source image.
type Geometry struct {
	// Source is the original image size.
	Source image.Point
	// Input is the model input size.
	Input image.Point
	// Scale is the uniform letterbox scale (input/source). Zero means the
	// input was stretched to the model size independently per axis.
	Scale float32
}

func (g Geometry) valid() bool {
	return g.Source.X > 0 && g.Source.Y > 0 && g.Input.X > 0 && g.Input.Y > 0
}

// toSource maps a point in model input pixels to source pixels.
func (g Geometry) toSource(x, y float32) (float32, float32) {
	if g.Scale > 0 {
		return x / g.Scale, y / g.Scale
	}
	return x * float32(g.Source.X) / float32(g.Input.X), y * float32(g.Source.Y) / float32(g.Input.Y)
}

// Decoder decodes one model family's outputs.
type Decoder struct {
	Scheme         Scheme
	ScoreThreshold float32
	IoUThreshold   float64
	// Outputs names the tensors to read, in the order the scheme expects.
	// Empty uses Scheme.DefaultOutputs.
	Outputs []string
}

// NewDecoder returns a decoder with the scheme's default thresholds.
func NewDecoder(scheme Scheme) Decoder {
	return Decoder{
		Scheme:         scheme,
		ScoreThreshold: scheme.DefaultScoreThreshold(),
		IoUThreshold:   scheme.DefaultIoUThreshold(),
	}
}

// Decode decodes raw with the scheme's default suppression threshold.
func Decode(raw map[string]*tensor.Tensor, g Geometry, scoreThreshold float32, scheme Scheme) (DetectionSet, error) {
	d := NewDecoder(scheme)
	d.ScoreThreshold = scoreThreshold
	return d.Decode(raw, g)
}

// Decode extracts candidates at or above the score threshold and suppresses
// overlaps. No candidates yields an empty set.
func (d Decoder) Decode(raw map[string]*tensor.Tensor, g Geometry) (DetectionSet, error) {
	cands, err := d.Candidates(raw, g)
	if err != nil {
		return nil, err
	}
	return NMS(cands, d.IoUThreshold), nil
}

// Candidates extracts every region at or above the score threshold, in
// tensor order, without suppression.
func (d Decoder) Candidates(raw map[string]*tensor.Tensor, g Geometry) ([]Region, error) {
	if !g.valid() {
		return nil, fmt.Errorf("%w: invalid geometry %+v", tensor.ErrShape, g)
	}
	names := d.Outputs
	if len(names) == 0 {
		names = d.Scheme.DefaultOutputs()
	}

	switch d.Scheme {
	case AnchorBox:
		return decodeAnchorBox(raw, names, g, d.ScoreThreshold)
	case CenterForm:
		return decodeCenterForm(raw, names, g, d.ScoreThreshold)
	case StrideDistance:
		return decodeStrideDistance(raw, names, g, d.ScoreThreshold)
	default:
		return nil, fmt.Errorf("unsupported decode scheme %s", d.Scheme)
	}
}

func lookup(raw map[string]*tensor.Tensor, name string) (*tensor.Tensor, error) {
	t, ok := raw[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %q", tensor.ErrMissingOutput, name)
	}
	return t, nil
}

// rows views t as rows of width values after dropping a leading batch of 1.
func rows(t *tensor.Tensor, width int) (int, error) {
	if len(t.Shape) == 0 || int(t.Shape[len(t.Shape)-1]) != width {
		return 0, fmt.Errorf("%w: want trailing dim %d, got %v", tensor.ErrShape, width, t.Shape)
	}
	n := len(t.Data) / width
	if int64(n*width) != tensor.Elements(t.Shape) {
		return 0, fmt.Errorf("%w: %d values for %v", tensor.ErrShape, len(t.Data), t.Shape)
	}
	return n, nil
}

func decodeAnchorBox(raw map[string]*tensor.Tensor, names []string, g Geometry, thr float32) ([]Region, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("anchor-box scheme needs scores and boxes outputs, got %v", names)
	}
	scores, err := lookup(raw, names[0])
	if err != nil {
		return nil, err
	}
	boxes, err := lookup(raw, names[1])
	if err != nil {
		return nil, err
	}

	classes := 1
	if len(scores.Shape) > 0 {
		classes = int(scores.Shape[len(scores.Shape)-1])
	}
	n, err := rows(scores, classes)
	if err != nil {
		return nil, err
	}
	nb, err := rows(boxes, 4)
	if err != nil {
		return nil, err
	}
	if nb != n {
		return nil, fmt.Errorf("%w: %d scores for %d boxes", tensor.ErrShape, n, nb)
	}

	// the face class is the last column (index 1 of background, face)
	col := classes - 1
	w, h := float32(g.Source.X), float32(g.Source.Y)

	var out []Region
	for i := 0; i < n; i++ {
		score := scores.Data[i*classes+col]
		if score < thr {
			continue
		}
		b := boxes.Data[i*4 : i*4+4]
		out = append(out, Region{
			X:     int(b[0] * w),
			Y:     int(b[1] * h),
			W:     int((b[2] - b[0]) * w),
			H:     int((b[3] - b[1]) * h),
			Score: score,
		})
	}
	return out, nil
}

func decodeCenterForm(raw map[string]*tensor.Tensor, names []string, g Geometry, thr float32) ([]Region, error) {
	var t *tensor.Tensor
	if len(names) > 0 {
		t = raw[names[0]]
	}
	if t == nil && len(raw) == 1 {
		for _, only := range raw {
			t = only
		}
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %v", tensor.ErrMissingOutput, names)
	}
	if len(t.Shape) != 3 || t.Shape[1] < 5 {
		return nil, fmt.Errorf("%w: want [1,5+,N], got %v", tensor.ErrShape, t.Shape)
	}
	c, n := int(t.Shape[1]), int(t.Shape[2])
	if len(t.Data) < c*n {
		return nil, fmt.Errorf("%w: %d values for %v", tensor.ErrShape, len(t.Data), t.Shape)
	}
	at := func(row, i int) float32 { return t.Data[row*n+i] }
	// rows 5.. hold five (x, y, visibility) keypoint triples when present
	withKps := c >= 5+15

	var out []Region
	for i := 0; i < n; i++ {
		score := at(4, i)
		if score < thr {
			continue
		}
		cx, cy, bw, bh := at(0, i), at(1, i), at(2, i), at(3, i)
		x, y := g.toSource(cx-bw/2, cy-bh/2)
		sw, sh := g.toSource(bw, bh)
		r := Region{X: int(x), Y: int(y), W: int(sw), H: int(sh), Score: score}
		if withKps {
			var pts [5]Point
			for k := range pts {
				px, py := g.toSource(at(5+3*k, i), at(6+3*k, i))
				pts[k] = Point{X: px, Y: py}
			}
			r.Landmarks = landmarksFrom(pts)
		}
		out = append(out, r)
	}
	return out, nil
}
