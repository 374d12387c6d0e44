package pipeline

import (
	"image/color"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/compositor"
	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// DefaultMatteSize is the RMBG-1.4 input size
const DefaultMatteSize = 1024

// BackgroundRemover runs a matting model and composites the result
type BackgroundRemover struct {
	model
	Size int
	Norm tensor.Normalization
}

// NewBackgroundRemover creates an unloaded background remover
func NewBackgroundRemover(loader inference.Loader, log logrus.FieldLogger) *BackgroundRemover {
	return &BackgroundRemover{
		model: newModel("background", loader, log),
		Size:  DefaultMatteSize,
		Norm:  tensor.NormHalfOffset,
	}
}

// Load loads the model. On a GPU one dummy inference is run so the first
// real call does not pay for kernel setup; its failure is ignored.
func (r *BackgroundRemover) Load(modelPath string, useGPU bool) error {
	if err := r.model.Load(modelPath, useGPU); err != nil {
		return err
	}
	if r.Device() == inference.DeviceGPU {
		if _, err := r.run(tensor.New(1, 3, int64(r.Size), int64(r.Size))); err != nil {
			r.log.WithError(err).Debug("warm-up failed")
		}
	}
	return nil
}

// RemoveBackground cuts out the foreground. Mask values below threshold are
// cleared. With bg nil the background becomes transparent, otherwise it is
// filled with bg.
func (r *BackgroundRemover) RemoveBackground(imageBytes []byte, threshold float32, bg *color.NRGBA) ([]byte, error) {
	if _, err := r.ready(); err != nil {
		return nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	input, _, err := tensor.ImageToTensor(img, tensor.Spec{
		Width:  r.Size,
		Height: r.Size,
		Layout: tensor.LayoutNCHW,
		Norm:   r.Norm,
	})
	if err != nil {
		return nil, err
	}
	mask, err := r.runSingle(input)
	if err != nil {
		return nil, err
	}

	out, err := compositor.ApplyMatte(img, mask, threshold, bg)
	if err != nil {
		return nil, err
	}
	return imagebuf.EncodePNG(out)
}
