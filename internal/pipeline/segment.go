package pipeline

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/segment"
)

// SegmentResult is the outcome of one click. With no candidates BestIndex is
// -1 and BestMaskBytes is nil.
type SegmentResult struct {
	Scores        []float32
	BestIndex     int
	Ranked        []int
	BestMaskBytes []byte
}

// Segmenter exposes a segmentation session over encoded images
type Segmenter struct {
	session *segment.Session
	size    image.Point
}

// NewSegmenter creates a segmenter for variant with no models loaded
func NewSegmenter(variant segment.Variant, loader inference.Loader, log logrus.FieldLogger) *Segmenter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Segmenter{
		session: segment.NewSession(loader, variant, segment.WithLogger(log.WithField("engine", "segment"))),
	}
}

// Session returns the underlying session
func (s *Segmenter) Session() *segment.Session { return s.session }

// LoadModels loads an encoder/decoder pair. Any encoded image is dropped.
func (s *Segmenter) LoadModels(encoderPath, decoderPath string, useGPU bool) error {
	s.size = image.Point{}
	return s.session.LoadModels(encoderPath, decoderPath, useGPU)
}

// SetVariant switches the model family and unloads the models.
func (s *Segmenter) SetVariant(v segment.Variant) error {
	s.size = image.Point{}
	return s.session.SetVariant(v)
}

// Device reports where the encoder runs
func (s *Segmenter) Device() inference.DeviceMode { return s.session.Device() }

// EncodeImage decodes and encodes an image for later clicks.
func (s *Segmenter) EncodeImage(imageBytes []byte) error {
	s.size = image.Point{}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return err
	}
	if err := s.session.EncodeImage(img); err != nil {
		return err
	}
	s.size = img.Bounds().Size()
	return nil
}

// Predict segments the object under (x, y), given in source pixels.
func (s *Segmenter) Predict(x, y float32) (*SegmentResult, error) {
	pred, err := s.session.Predict(x, y)
	if err != nil {
		return nil, err
	}
	res := &SegmentResult{
		Scores:    pred.Scores,
		BestIndex: pred.BestIndex,
		Ranked:    pred.Ranked,
	}
	if pred.BestIndex < 0 {
		return res, nil
	}
	if res.BestMaskBytes, err = s.GetMaskImage(pred.BestIndex); err != nil {
		return nil, err
	}
	return res, nil
}

// PredictRatio segments at a click given as a fraction of the displayed
// image.
func (s *Segmenter) PredictRatio(rx, ry float64) (*SegmentResult, error) {
	if s.size == (image.Point{}) {
		return nil, fmt.Errorf("%w: no encoded image", segment.ErrInvalidState)
	}
	x, y, ok := segment.PointFromRatio(rx, ry, s.size)
	if !ok {
		return nil, fmt.Errorf("%w: click (%.3f, %.3f) outside the image", segment.ErrUsage, rx, ry)
	}
	return s.Predict(x, y)
}

// GetMaskImage renders a candidate of the last prediction as PNG bytes.
func (s *Segmenter) GetMaskImage(index int) ([]byte, error) {
	img, err := s.session.MaskImage(index)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(img)
}

// Close releases the models
func (s *Segmenter) Close() error {
	return s.session.Close()
}
