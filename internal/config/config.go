// Package config loads engine settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid reports a config value out of range.
var ErrInvalid = errors.New("invalid config")

// Config holds settings for every engine
type Config struct {
	Runtime      Runtime      `yaml:"runtime"`
	Colorization Colorization `yaml:"colorization"`
	Face         Face         `yaml:"face"`
	Background   Background   `yaml:"background"`
	Style        Style        `yaml:"style"`
	Upscale      Upscale      `yaml:"upscale"`
	Segment      Segment      `yaml:"segment"`
	LogLevel     string       `yaml:"log_level"`
}

// Runtime configures the ONNX Runtime library
type Runtime struct {
	LibraryPath    string `yaml:"library_path"`
	UseGPU         bool   `yaml:"use_gpu"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
}

type Colorization struct {
	Model string `yaml:"model"`
	Size  int    `yaml:"size"`
}

// Face configures detection and anonymization. Zero thresholds use the
// preset's defaults.
type Face struct {
	Model        string  `yaml:"model"`
	Preset       string  `yaml:"preset"`
	Confidence   float32 `yaml:"confidence"`
	IoU          float64 `yaml:"iou"`
	BlurSigma    float64 `yaml:"blur_sigma"`
	BlurStyle    string  `yaml:"blur_style"`
	BoxThickness int     `yaml:"box_thickness"`
	BoxColor     string  `yaml:"box_color"`
}

// Background configures background removal. An empty Color keeps the
// result transparent.
type Background struct {
	Model     string  `yaml:"model"`
	Size      int     `yaml:"size"`
	Threshold float32 `yaml:"threshold"`
	Color     string  `yaml:"color"`
}

type Style struct {
	Model string `yaml:"model"`
}

// Upscale configures tiled super-resolution. TileSize 0 runs the whole
// image at once.
type Upscale struct {
	Model    string `yaml:"model"`
	TileSize int    `yaml:"tile_size"`
	TilePad  int    `yaml:"tile_pad"`
}

type Segment struct {
	Variant string `yaml:"variant"`
	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Colorization: Colorization{
			Model: "models/ddcolor.onnx",
			Size:  512,
		},
		Face: Face{
			Model:        "models/version-RFB-320.onnx",
			Preset:       "ultraface",
			BlurSigma:    15,
			BlurStyle:    "gaussian",
			BoxThickness: 3,
			BoxColor:     "red",
		},
		Background: Background{
			Model: "models/rmbg-1.4.onnx",
			Size:  1024,
		},
		Style: Style{
			Model: "models/animeganv2.onnx",
		},
		Upscale: Upscale{
			Model:    "models/realesrgan-x4.onnx",
			TileSize: 128,
			TilePad:  10,
		},
		Segment: Segment{
			Variant: "sam2",
			Encoder: "models/sam2_encoder.onnx",
			Decoder: "models/sam2_decoder.onnx",
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Runtime.IntraOpThreads >= 0, "runtime.intra_op_threads must be >= 0")
	check(c.Colorization.Size > 0, "colorization.size must be positive")
	check(c.Face.Confidence >= 0 && c.Face.Confidence <= 1, "face.confidence %v not in [0,1]", c.Face.Confidence)
	check(c.Face.IoU >= 0 && c.Face.IoU <= 1, "face.iou %v not in [0,1]", c.Face.IoU)
	check(c.Face.BlurSigma >= 0, "face.blur_sigma must be >= 0")
	check(c.Face.BoxThickness >= 0, "face.box_thickness must be >= 0")
	check(c.Background.Size > 0, "background.size must be positive")
	check(c.Background.Threshold >= 0 && c.Background.Threshold <= 1, "background.threshold %v not in [0,1]", c.Background.Threshold)
	check(c.Upscale.TileSize >= 0, "upscale.tile_size must be >= 0")
	check(c.Upscale.TilePad >= 0, "upscale.tile_pad must be >= 0")

	return errors.Join(errs...)
}

// Save writes c as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
