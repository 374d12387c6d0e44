package pipeline

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// styleAlign is the spatial multiple AnimeGAN needs
const styleAlign = 32

// Stylizer runs an AnimeGAN style transfer model
type Stylizer struct {
	model
}

// NewStylizer creates an unloaded stylizer
func NewStylizer(loader inference.Loader, log logrus.FieldLogger) *Stylizer {
	return &Stylizer{model: newModel("style", loader, log)}
}

// StyleSize returns the size an image of size is cropped to.
func StyleSize(size image.Point) image.Point {
	return image.Pt(size.X-size.X%styleAlign, size.Y-size.Y%styleAlign)
}

// Process stylizes an image. The image is cropped from the top left to the
// next lower multiple of 32 on each axis and the output keeps that size.
func (s *Stylizer) Process(imageBytes []byte) ([]byte, error) {
	if _, err := s.ready(); err != nil {
		return nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	size := StyleSize(img.Bounds().Size())
	if size.X == 0 || size.Y == 0 {
		return nil, fmt.Errorf("%w: %v is below %dx%d", ErrImageTooSmall, img.Bounds().Size(), styleAlign, styleAlign)
	}
	cropped := img
	if size != img.Bounds().Size() {
		cropped = imagebuf.Crop(img, image.Rectangle{Max: size})
	}

	input, _, err := tensor.ImageToTensor(cropped, tensor.Spec{
		Layout: tensor.LayoutNHWC,
		Norm:   tensor.NormSymmetric,
	})
	if err != nil {
		return nil, err
	}
	output, err := s.runSingle(input)
	if err != nil {
		return nil, err
	}

	out, err := tensor.TensorToImage(output, size, tensor.LayoutNHWC, tensor.NormSymmetric)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(out)
}
