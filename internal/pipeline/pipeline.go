package pipeline

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/compositor"
	"github.com/dudu/aivision/internal/config"
	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/segment"
)

// Pipeline builds engines from a config and loads their models on first use.
type Pipeline struct {
	config config.Config
	loader inference.Loader
	log    logrus.FieldLogger

	colorizer  *Colorizer
	faces      *FaceDetector
	background *BackgroundRemover
	stylizer   *Stylizer
	upscaler   *Upscaler
	segmenter  *Segmenter
}

// New creates a pipeline. A nil loader uses ONNX Runtime with the
// configured library.
func New(cfg config.Config, loader inference.Loader, log logrus.FieldLogger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if loader == nil {
		ort := inference.NewORTLoader(cfg.Runtime.LibraryPath, log)
		ort.IntraOpThreads = cfg.Runtime.IntraOpThreads
		loader = ort
	}
	return &Pipeline{config: cfg, loader: loader, log: log}, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() config.Config { return p.config }

// Colorizer returns the loaded colorization engine
func (p *Pipeline) Colorizer() (*Colorizer, error) {
	if p.colorizer == nil {
		c := NewColorizer(p.loader, p.log)
		c.Size = p.config.Colorization.Size
		if err := c.Load(p.config.Colorization.Model, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.colorizer = c
	}
	return p.colorizer, nil
}

// FaceDetector returns the loaded face engine
func (p *Pipeline) FaceDetector() (*FaceDetector, error) {
	if p.faces == nil {
		cfg := p.config.Face
		preset, err := ParseFacePreset(cfg.Preset)
		if err != nil {
			return nil, err
		}
		style, err := compositor.ParseBlurStyle(cfg.BlurStyle)
		if err != nil {
			return nil, err
		}
		d := NewFaceDetector(preset, p.loader, p.log)
		d.IoUThreshold = cfg.IoU
		d.Style = style
		if cfg.BoxColor != "" {
			if d.BoxColor, err = imagebuf.ParseColor(cfg.BoxColor); err != nil {
				return nil, err
			}
		}
		if err := d.Load(cfg.Model, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.faces = d
	}
	return p.faces, nil
}

// BackgroundRemover returns the loaded background engine
func (p *Pipeline) BackgroundRemover() (*BackgroundRemover, error) {
	if p.background == nil {
		r := NewBackgroundRemover(p.loader, p.log)
		r.Size = p.config.Background.Size
		if err := r.Load(p.config.Background.Model, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.background = r
	}
	return p.background, nil
}

// BackgroundColor parses the configured fill colour; nil means transparent.
func (p *Pipeline) BackgroundColor() (*color.NRGBA, error) {
	if p.config.Background.Color == "" {
		return nil, nil
	}
	c, err := imagebuf.ParseColor(p.config.Background.Color)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Stylizer returns the loaded style engine
func (p *Pipeline) Stylizer() (*Stylizer, error) {
	if p.stylizer == nil {
		s := NewStylizer(p.loader, p.log)
		if err := s.Load(p.config.Style.Model, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.stylizer = s
	}
	return p.stylizer, nil
}

// Upscaler returns the loaded upscaling engine
func (p *Pipeline) Upscaler() (*Upscaler, error) {
	if p.upscaler == nil {
		u := NewUpscaler(p.loader, p.log)
		u.TileSize = p.config.Upscale.TileSize
		u.TilePad = p.config.Upscale.TilePad
		if err := u.Load(p.config.Upscale.Model, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.upscaler = u
	}
	return p.upscaler, nil
}

// Segmenter returns the segmentation engine with its models loaded
func (p *Pipeline) Segmenter() (*Segmenter, error) {
	if p.segmenter == nil {
		cfg := p.config.Segment
		v, err := segment.ParseVariant(cfg.Variant)
		if err != nil {
			return nil, err
		}
		s := NewSegmenter(v, p.loader, p.log)
		if err := s.LoadModels(cfg.Encoder, cfg.Decoder, p.config.Runtime.UseGPU); err != nil {
			return nil, err
		}
		p.segmenter = s
	}
	return p.segmenter, nil
}

// Close releases every loaded engine
func (p *Pipeline) Close() error {
	var errs []error
	closeEngine := func(name string, e interface{ Close() error }) {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if p.colorizer != nil {
		closeEngine("colorization", p.colorizer)
	}
	if p.faces != nil {
		closeEngine("face", p.faces)
	}
	if p.background != nil {
		closeEngine("background", p.background)
	}
	if p.stylizer != nil {
		closeEngine("style", p.stylizer)
	}
	if p.upscaler != nil {
		closeEngine("upscale", p.upscaler)
	}
	if p.segmenter != nil {
		closeEngine("segment", p.segmenter)
	}
	p.colorizer, p.faces, p.background, p.stylizer, p.upscaler, p.segmenter = nil, nil, nil, nil, nil, nil

	if err := inference.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}
