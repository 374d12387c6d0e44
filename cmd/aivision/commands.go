package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/aivision/internal/config"
	"github.com/dudu/aivision/internal/detector"
	"github.com/dudu/aivision/internal/pipeline"
)

func closePipeline(p *pipeline.Pipeline, log logrus.FieldLogger) {
	if err := p.Close(); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func newColorizeCmd(g *globalOptions) *cobra.Command {
	var model, out string
	cmd := &cobra.Command{
		Use:   "colorize <image>",
		Short: "Colorize a grayscale photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if model != "" {
					c.Colorization.Model = model
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			c, err := p.Colorizer()
			if err != nil {
				return err
			}
			result, err := c.Process(data)
			if err != nil {
				return err
			}
			return writeOutput(log, outputPath(args[0], out, "color"), result)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "colorization model")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output PNG")
	return cmd
}

func newFacesCmd(g *globalOptions) *cobra.Command {
	var (
		model, preset, out  string
		conf                float32
		sigma               float64
		thickness           int
		blur, boxes, asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "faces <image>",
		Short: "Detect faces, optionally blurring or outlining them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if model != "" {
					c.Face.Model = model
				}
				if preset != "" {
					c.Face.Preset = preset
				}
				if flags.Changed("conf") {
					c.Face.Confidence = conf
				}
				if flags.Changed("sigma") {
					c.Face.BlurSigma = sigma
				}
				if flags.Changed("thickness") {
					c.Face.BoxThickness = thickness
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			d, err := p.FaceDetector()
			if err != nil {
				return err
			}

			cfg := p.Config().Face
			var faces detector.DetectionSet
			if blur || boxes {
				var result []byte
				result, faces, err = d.Anonymize(data, pipeline.AnonymizeOptions{
					Confidence: cfg.Confidence,
					Blur:       blur,
					Sigma:      cfg.BlurSigma,
					Boxes:      boxes,
					Thickness:  cfg.BoxThickness,
				})
				if err != nil {
					return err
				}
				if err := writeOutput(log, outputPath(args[0], out, "faces"), result); err != nil {
					return err
				}
			} else if faces, err = d.Detect(data, cfg.Confidence); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(faces)
			}
			fmt.Fprintf(w, "%d face(s)\n", len(faces))
			for i, f := range faces {
				fmt.Fprintf(w, "  %d: x=%d y=%d w=%d h=%d score=%.3f\n", i, f.X, f.Y, f.W, f.H, f.Score)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&model, "model", "", "face detection model")
	flags.StringVar(&preset, "preset", "", "model contract: ultraface, yolov8-face or scrfd")
	flags.Float32Var(&conf, "conf", 0, "confidence threshold (0 uses the preset default)")
	flags.Float64Var(&sigma, "sigma", 15, "blur strength")
	flags.IntVar(&thickness, "thickness", 3, "box outline thickness")
	flags.BoolVar(&blur, "blur", false, "blur detected faces")
	flags.BoolVar(&boxes, "boxes", false, "outline detected faces")
	flags.BoolVar(&asJSON, "json", false, "print detections as JSON")
	flags.StringVarP(&out, "output", "o", "", "output PNG when --blur or --boxes is set")
	return cmd
}

func newRemoveBackgroundCmd(g *globalOptions) *cobra.Command {
	var (
		model, bg, out string
		threshold      float32
	)
	cmd := &cobra.Command{
		Use:   "rmbg <image>",
		Short: "Remove the background of a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if model != "" {
					c.Background.Model = model
				}
				if flags.Changed("threshold") {
					c.Background.Threshold = threshold
				}
				if flags.Changed("bg") {
					c.Background.Color = bg
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			fill, err := p.BackgroundColor()
			if err != nil {
				return err
			}
			r, err := p.BackgroundRemover()
			if err != nil {
				return err
			}
			result, err := r.RemoveBackground(data, p.Config().Background.Threshold, fill)
			if err != nil {
				return err
			}
			return writeOutput(log, outputPath(args[0], out, "nobg"), result)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&model, "model", "", "matting model")
	flags.Float32Var(&threshold, "threshold", 0, "mask values below this become background")
	flags.StringVar(&bg, "bg", "", "fill colour (name or #rrggbb); empty keeps transparency")
	flags.StringVarP(&out, "output", "o", "", "output PNG")
	return cmd
}

func newStyleCmd(g *globalOptions) *cobra.Command {
	var model, out string
	cmd := &cobra.Command{
		Use:   "style <image>",
		Short: "Apply an anime style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if model != "" {
					c.Style.Model = model
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			s, err := p.Stylizer()
			if err != nil {
				return err
			}
			result, err := s.Process(data)
			if err != nil {
				return err
			}
			return writeOutput(log, outputPath(args[0], out, "style"), result)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "style transfer model")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output PNG")
	return cmd
}

func newUpscaleCmd(g *globalOptions) *cobra.Command {
	var (
		model, out string
		tile, pad  int
	)
	cmd := &cobra.Command{
		Use:   "upscale <image>",
		Short: "Enlarge a photo with a super-resolution model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if model != "" {
					c.Upscale.Model = model
				}
				if flags.Changed("tile") {
					c.Upscale.TileSize = tile
				}
				if flags.Changed("pad") {
					c.Upscale.TilePad = pad
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			u, err := p.Upscaler()
			if err != nil {
				return err
			}
			stderr := cmd.ErrOrStderr()
			result, err := u.Upscale(data, func(done float64) {
				fmt.Fprintf(stderr, "\rUpscaling... %3.0f%%", done*100)
			})
			fmt.Fprintln(stderr)
			if err != nil {
				return err
			}
			return writeOutput(log, outputPath(args[0], out, "upscaled"), result)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&model, "model", "", "super-resolution model")
	flags.IntVar(&tile, "tile", pipeline.DefaultTileSize, "tile size in pixels, 0 for the whole image")
	flags.IntVar(&pad, "pad", pipeline.DefaultTilePad, "context pixels around each tile")
	flags.StringVarP(&out, "output", "o", "", "output PNG")
	return cmd
}

func newSegmentCmd(g *globalOptions) *cobra.Command {
	var (
		variant, encoder, decoder, out string
		x, y                           float64
		index                          int
	)
	cmd := &cobra.Command{
		Use:   "segment <image>",
		Short: "Segment the object under a click",
		Long: "Segment the object under a click. --x and --y give the click as a fraction\n" +
			"of the image width and height; the mask is written as a coloured overlay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, log, err := setup(cmd, g, func(c *config.Config) {
				if variant != "" {
					c.Segment.Variant = variant
				}
				if encoder != "" {
					c.Segment.Encoder = encoder
				}
				if decoder != "" {
					c.Segment.Decoder = decoder
				}
			})
			if err != nil {
				return err
			}
			defer closePipeline(p, log)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			s, err := p.Segmenter()
			if err != nil {
				return err
			}
			if err := s.EncodeImage(data); err != nil {
				return err
			}
			res, err := s.PredictRatio(x, y)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(res.Scores) == 0 {
				fmt.Fprintln(w, "no mask candidates")
				return nil
			}
			mask := res.BestMaskBytes
			if index >= 0 {
				if mask, err = s.GetMaskImage(index); err != nil {
					return err
				}
			}

			for rank, i := range res.Ranked {
				marker := ""
				if i == res.BestIndex {
					marker = " (best)"
				}
				fmt.Fprintf(w, "  #%d mask %d score=%.3f%s\n", rank+1, i, res.Scores[i], marker)
			}
			return writeOutput(log, outputPath(args[0], out, "mask"), mask)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&variant, "variant", "", "model family: mobilesam or sam2")
	flags.StringVar(&encoder, "encoder", "", "image encoder model")
	flags.StringVar(&decoder, "decoder", "", "mask decoder model")
	flags.Float64Var(&x, "x", 0.5, "click position as a fraction of the width")
	flags.Float64Var(&y, "y", 0.5, "click position as a fraction of the height")
	flags.IntVar(&index, "index", -1, "candidate to write, -1 for the best")
	flags.StringVarP(&out, "output", "o", "", "output PNG")
	return cmd
}
