package detector

import (
	"fmt"

	"github.com/dudu/aivision/internal/tensor"
)

var featureStrides = []int{8, 16, 32}

// anchors per feature map cell
const numAnchors = 2

// decodeStrideDistance decodes SCRFD outputs. names lists the score outputs
// of each level, then the bbox outputs, then optionally the kps outputs.
// Scores are already sigmoid activated by the exported graph.
func decodeStrideDistance(raw map[string]*tensor.Tensor, names []string, g Geometry, thr float32) ([]Region, error) {
	levels := len(featureStrides)
	if len(names) != 2*levels && len(names) != 3*levels {
		return nil, fmt.Errorf("%w: stride-distance scheme needs %d or %d outputs, got %d", tensor.ErrMissingOutput, 2*levels, 3*levels, len(names))
	}
	withKps := len(names) == 3*levels

	var faces []Region
	for level, stride := range featureStrides {
		fmHeight := g.Input.Y / stride
		fmWidth := g.Input.X / stride
		count := fmHeight * fmWidth * numAnchors

		scoreData, err := levelData(raw, names[level], count, 1)
		if err != nil {
			return nil, err
		}
		bboxData, err := levelData(raw, names[level+levels], count, 4)
		if err != nil {
			return nil, err
		}
		var kpsData []float32
		if withKps {
			if kpsData, err = levelData(raw, names[level+2*levels], count, 10); err != nil {
				return nil, err
			}
		}

		s := float32(stride)
		anchorIdx := 0
		for y := 0; y < fmHeight; y++ {
			for x := 0; x < fmWidth; x++ {
				for a := 0; a < numAnchors; a++ {
					score := scoreData[anchorIdx]
					if score < thr {
						anchorIdx++
						continue
					}

					// Anchor center
					cx := float32(x) * s
					cy := float32(y) * s

					// Decode bbox (distance to edges)
					bb := bboxData[anchorIdx*4 : anchorIdx*4+4]
					x1, y1 := g.toSource(cx-bb[0]*s, cy-bb[1]*s)
					x2, y2 := g.toSource(cx+bb[2]*s, cy+bb[3]*s)

					// Clamp to image bounds
					x1 = clamp(x1, 0, float32(g.Source.X))
					y1 = clamp(y1, 0, float32(g.Source.Y))
					x2 = clamp(x2, 0, float32(g.Source.X))
					y2 = clamp(y2, 0, float32(g.Source.Y))

					r := Region{
						X:     int(x1),
						Y:     int(y1),
						W:     int(x2 - x1),
						H:     int(y2 - y1),
						Score: score,
					}

					if withKps {
						kp := kpsData[anchorIdx*10 : anchorIdx*10+10]
						var pts [5]Point
						for k := range pts {
							px, py := g.toSource(cx+kp[2*k]*s, cy+kp[2*k+1]*s)
							pts[k] = Point{X: px, Y: py}
						}
						r.Landmarks = landmarksFrom(pts)
					}

					faces = append(faces, r)
					anchorIdx++
				}
			}
		}
	}

	return faces, nil
}

func levelData(raw map[string]*tensor.Tensor, name string, count, width int) ([]float32, error) {
	t, err := lookup(raw, name)
	if err != nil {
		return nil, err
	}
	if len(t.Data) != count*width {
		return nil, fmt.Errorf("%w: output %q has %d values, want %d", tensor.ErrShape, name, len(t.Data), count*width)
	}
	return t.Data, nil
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
