package pipeline

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/imagebuf"
	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

const (
	DefaultTileSize = 128
	DefaultTilePad  = 10
)

// Upscaler runs a Real-ESRGAN style super-resolution model tile by tile.
// The scale factor is read from the model output.
type Upscaler struct {
	model
	// TileSize is the tile edge in source pixels; 0 runs the whole image.
	TileSize int
	// TilePad is the context added around each tile and cut from the result.
	TilePad int
}

// NewUpscaler creates an unloaded upscaler
func NewUpscaler(loader inference.Loader, log logrus.FieldLogger) *Upscaler {
	return &Upscaler{
		model:    newModel("upscale", loader, log),
		TileSize: DefaultTileSize,
		TilePad:  DefaultTilePad,
	}
}

// Tiles splits bounds into tiles of at most size pixels, row by row.
func Tiles(bounds image.Rectangle, size int) []image.Rectangle {
	if size <= 0 {
		return []image.Rectangle{bounds}
	}
	var tiles []image.Rectangle
	for y := bounds.Min.Y; y < bounds.Max.Y; y += size {
		for x := bounds.Min.X; x < bounds.Max.X; x += size {
			tiles = append(tiles, image.Rect(x, y, x+size, y+size).Intersect(bounds))
		}
	}
	return tiles
}

// Upscale enlarges an image. progress, when not nil, is called after every
// tile with the finished fraction; the last call reports 1.
func (u *Upscaler) Upscale(imageBytes []byte, progress Progress) ([]byte, error) {
	if _, err := u.ready(); err != nil {
		return nil, err
	}
	img, err := imagebuf.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(float64) {}
	}

	bounds := img.Bounds()
	tiles := Tiles(bounds, u.TileSize)
	var (
		out   *image.NRGBA
		scale int
	)

	for i, tile := range tiles {
		padded := image.Rect(
			tile.Min.X-u.TilePad, tile.Min.Y-u.TilePad,
			tile.Max.X+u.TilePad, tile.Max.Y+u.TilePad,
		).Intersect(bounds)

		result, s, err := u.upscaleTile(imagebuf.Crop(img, padded))
		if err != nil {
			return nil, fmt.Errorf("tile %d/%d: %w", i+1, len(tiles), err)
		}
		if out == nil {
			scale = s
			out = image.NewNRGBA(image.Rect(0, 0, bounds.Dx()*scale, bounds.Dy()*scale))
		} else if s != scale {
			return nil, fmt.Errorf("%w: tile %d scaled x%d, expected x%d", tensor.ErrShape, i+1, s, scale)
		}

		// cut the padding back off
		inner := image.Rect(
			(tile.Min.X-padded.Min.X)*scale, (tile.Min.Y-padded.Min.Y)*scale,
			(tile.Max.X-padded.Min.X)*scale, (tile.Max.Y-padded.Min.Y)*scale,
		)
		imagebuf.Paste(out, imagebuf.Crop(result, inner), tile.Min.Mul(scale))

		progress(float64(i+1) / float64(len(tiles)))
	}

	u.log.WithFields(logrus.Fields{
		"tiles": len(tiles),
		"scale": scale,
	}).Debug("upscale done")
	return imagebuf.EncodePNG(out)
}

func (u *Upscaler) upscaleTile(tile *image.NRGBA) (*image.NRGBA, int, error) {
	input, _, err := tensor.ImageToTensor(tile, tensor.Spec{
		Layout: tensor.LayoutNCHW,
		Norm:   tensor.NormUnit,
	})
	if err != nil {
		return nil, 0, err
	}
	output, err := u.runSingle(input)
	if err != nil {
		return nil, 0, err
	}

	p, err := tensor.NewPlane(output, tensor.LayoutNCHW)
	if err != nil {
		return nil, 0, err
	}
	w, h := tile.Bounds().Dx(), tile.Bounds().Dy()
	scale := p.W / w
	if scale < 1 || p.W != w*scale || p.H != h*scale {
		return nil, 0, fmt.Errorf("%w: %dx%d tile produced %dx%d", tensor.ErrShape, w, h, p.W, p.H)
	}

	result, err := tensor.TensorToImage(output, image.Point{}, tensor.LayoutNCHW, tensor.NormUnit)
	if err != nil {
		return nil, 0, err
	}
	return result, scale, nil
}
