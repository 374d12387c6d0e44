package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/compositor"
	"github.com/dudu/aivision/internal/detector"
	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// FacePreset is the input and output contract of a face detection model.
type FacePreset struct {
	Name   string
	Input  image.Point
	Norm   tensor.Normalization
	Scheme detector.Scheme
	// Letterbox keeps the aspect ratio when resizing to Input.
	Letterbox bool
	// InputName overrides the model's first declared input.
	InputName string
}

var (
	// UltraFace is the RFB-320 detector: 320x240, SSD-style outputs.
	UltraFace = FacePreset{
		Name:   "ultraface",
		Input:  image.Pt(320, 240),
		Norm:   tensor.NormMeanScale,
		Scheme: detector.AnchorBox,
	}
	// YOLOv8Face is yolov8n-face: 640x640, [1,5+,8400] output.
	YOLOv8Face = FacePreset{
		Name:      "yolov8-face",
		Input:     image.Pt(640, 640),
		Norm:      tensor.NormUnit,
		Scheme:    detector.CenterForm,
		InputName: "images",
	}
	// SCRFD is the insightface detector with letterboxed input.
	SCRFD = FacePreset{
		Name:      "scrfd",
		Input:     image.Pt(640, 640),
		Norm:      tensor.NormInsightFace,
		Scheme:    detector.StrideDistance,
		Letterbox: true,
	}
)

// ParseFacePreset resolves a preset by name.
func ParseFacePreset(name string) (FacePreset, error) {
	for _, p := range []FacePreset{UltraFace, YOLOv8Face, SCRFD} {
		if strings.EqualFold(name, p.Name) {
			return p, nil
		}
	}
	return FacePreset{}, fmt.Errorf("unknown face preset %q", name)
}

// DefaultBoxColor is the outline colour of DrawBoxes
var DefaultBoxColor = color.NRGBA{R: 255, A: 255}

// FaceDetector detects faces and anonymizes them
type FaceDetector struct {
	model
	preset FacePreset
	// IoUThreshold overrides the scheme default when positive.
	IoUThreshold float64
	Style        compositor.BlurStyle
	BoxColor     color.NRGBA
}

// NewFaceDetector creates an unloaded detector for preset
func NewFaceDetector(preset FacePreset, loader inference.Loader, log logrus.FieldLogger) *FaceDetector {
	return &FaceDetector{
		model:    newModel("face", loader, log),
		preset:   preset,
		BoxColor: DefaultBoxColor,
	}
}

// Preset returns the model contract in use
func (d *FaceDetector) Preset() FacePreset { return d.preset }

// Decoder returns the decoder Detect uses for confThreshold. A zero
// threshold selects the scheme default.
func (d *FaceDetector) Decoder(confThreshold float32) detector.Decoder {
	dec := detector.NewDecoder(d.preset.Scheme)
	if confThreshold > 0 {
		dec.ScoreThreshold = confThreshold
	}
	if d.IoUThreshold > 0 {
		dec.IoUThreshold = d.IoUThreshold
	}
	return dec
}

// Detect finds faces. Regions are in source pixels, highest score first.
func (d *FaceDetector) Detect(imageBytes []byte, confThreshold float32) (detector.DetectionSet, error) {
	s, err := d.ready()
	if err != nil {
		return nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	return d.detect(s, img, confThreshold)
}

func (d *FaceDetector) detect(s inference.Session, img image.Image, confThreshold float32) (detector.DetectionSet, error) {
	input, frame, err := tensor.ImageToTensor(img, tensor.Spec{
		Width:     d.preset.Input.X,
		Height:    d.preset.Input.Y,
		Layout:    tensor.LayoutNCHW,
		Norm:      d.preset.Norm,
		Letterbox: d.preset.Letterbox,
	})
	if err != nil {
		return nil, err
	}

	name := d.preset.InputName
	if name == "" {
		if name, err = inference.FirstInput(s); err != nil {
			return nil, err
		}
	}
	outputs, err := d.runNamed(name, input)
	if err != nil {
		return nil, err
	}

	dec := d.Decoder(confThreshold)
	switch d.preset.Scheme {
	case detector.CenterForm:
		if names := s.OutputNames(); len(names) > 0 {
			dec.Outputs = names[:1]
		}
	case detector.StrideDistance:
		// exported graphs number their outputs; declared order is scores, boxes, kps
		dec.Outputs = s.OutputNames()
	}

	g := detector.Geometry{Source: frame.Source, Input: frame.Size}
	if d.preset.Letterbox {
		g.Scale = frame.Scale
	}
	faces, err := dec.Decode(outputs, g)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{
		"faces":     len(faces),
		"threshold": dec.ScoreThreshold,
	}).Debug("faces detected")
	return faces, nil
}

// ApplyBlur blurs every region and returns PNG bytes
func (d *FaceDetector) ApplyBlur(imageBytes []byte, regions detector.DetectionSet, sigma float64) ([]byte, error) {
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(compositor.BlurRegions(img, regions.Rects(), sigma, d.Style))
}

// DrawBoxes outlines every region and returns PNG bytes
func (d *FaceDetector) DrawBoxes(imageBytes []byte, regions detector.DetectionSet, thickness int) ([]byte, error) {
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(compositor.DrawBoxes(img, regions.Rects(), thickness, d.BoxColor))
}

// AnonymizeOptions selects the post-processing of Anonymize. Blur runs
// before the boxes are drawn.
type AnonymizeOptions struct {
	Confidence float32
	Blur       bool
	Sigma      float64
	Boxes      bool
	Thickness  int
}

// Anonymize detects faces and applies the requested effects in one pass.
func (d *FaceDetector) Anonymize(imageBytes []byte, opts AnonymizeOptions) ([]byte, detector.DetectionSet, error) {
	s, err := d.ready()
	if err != nil {
		return nil, nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, nil, err
	}
	faces, err := d.detect(s, img, opts.Confidence)
	if err != nil {
		return nil, nil, err
	}

	out := img
	if opts.Blur {
		out = compositor.BlurRegions(out, faces.Rects(), opts.Sigma, d.Style)
	}
	if opts.Boxes {
		out = compositor.DrawBoxes(out, faces.Rects(), opts.Thickness, d.BoxColor)
	}
	data, err := imagebuf.EncodePNG(out)
	if err != nil {
		return nil, nil, err
	}
	return data, faces, nil
}
