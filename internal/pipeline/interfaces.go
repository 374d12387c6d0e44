package pipeline

import (
	"image/color"

	"github.com/dudu/aivision/internal/detector"
	"github.com/dudu/aivision/internal/inference"
)

// Engine is a loadable model wrapper
type Engine interface {
	Load(modelPath string, useGPU bool) error
	Device() inference.DeviceMode
	Close() error
}

// ImageProcessor maps one encoded image to another
type ImageProcessor interface {
	Engine
	Process(imageBytes []byte) ([]byte, error)
}

// FaceFinder detects faces and anonymizes them
type FaceFinder interface {
	Engine
	Detect(imageBytes []byte, confThreshold float32) (detector.DetectionSet, error)
	ApplyBlur(imageBytes []byte, regions detector.DetectionSet, sigma float64) ([]byte, error)
	DrawBoxes(imageBytes []byte, regions detector.DetectionSet, thickness int) ([]byte, error)
}

// BackgroundEraser cuts the foreground out of an image
type BackgroundEraser interface {
	Engine
	RemoveBackground(imageBytes []byte, threshold float32, bg *color.NRGBA) ([]byte, error)
}

// Progress receives the finished fraction of a long operation, in [0,1].
type Progress func(fraction float64)

var (
	_ ImageProcessor   = (*Colorizer)(nil)
	_ ImageProcessor   = (*Stylizer)(nil)
	_ FaceFinder       = (*FaceDetector)(nil)
	_ BackgroundEraser = (*BackgroundRemover)(nil)
	_ Engine           = (*Upscaler)(nil)
)
