package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/compositor"
	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// DefaultColorizeSize is the DDColor input size
const DefaultColorizeSize = 512

// Colorizer colorizes grayscale photos. The model sees only the luminance
// of a square resize; the result keeps the full-resolution luminance of the
// original and takes the predicted chroma.
type Colorizer struct {
	model
	Size int
}

// NewColorizer creates an unloaded colorizer
func NewColorizer(loader inference.Loader, log logrus.FieldLogger) *Colorizer {
	return &Colorizer{model: newModel("colorization", loader, log), Size: DefaultColorizeSize}
}

// Process colorizes an encoded image and returns PNG bytes.
func (c *Colorizer) Process(imageBytes []byte) ([]byte, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	input, _, err := tensor.ImageToTensor(img, tensor.Spec{
		Width:  c.Size,
		Height: c.Size,
		Layout: tensor.LayoutNCHW,
		Norm:   tensor.NormLuminance,
	})
	if err != nil {
		return nil, err
	}

	ab, err := c.runSingle(input)
	if err != nil {
		return nil, err
	}

	out, err := compositor.TransplantLuminance(img, ab)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(out)
}
