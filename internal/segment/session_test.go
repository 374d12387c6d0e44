package segment

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

const testInput = 64

func smallVariant(v Variant) Variant {
	v.InputSize = testInput
	return v
}

type fixture struct {
	loader  *inference.MockLoader
	encoder *inference.MockSession
	decoder *inference.MockSession
	session *Session
}

// newFixture wires a mock encoder/decoder pair. The decoder returns three
// candidates scored 0.2, 0.9, 0.5; masks come from maskFn.
func newFixture(t *testing.T, v Variant, maskFn func(inputs map[string]*tensor.Tensor) *tensor.Tensor) *fixture {
	t.Helper()
	f := &fixture{loader: inference.NewMockLoader()}

	f.encoder = f.loader.Register("encoder.onnx", &inference.MockSession{
		In:  []string{"image"},
		Out: v.Embeddings,
		RunFunc: func(in map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
			out := map[string]*tensor.Tensor{}
			for i, n := range v.Embeddings {
				out[n] = tensor.New(1, int64(i+1), 2, 2)
			}
			return out, nil
		},
	})
	f.decoder = f.loader.Register("decoder.onnx", &inference.MockSession{
		In:  append(append([]string(nil), v.Embeddings...), v.PointCoords, v.PointLabels),
		Out: []string{v.Masks, v.Scores},
		RunFunc: func(in map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
			scores, err := tensor.FromSlice([]float32{0.2, 0.9, 0.5}, 1, 3)
			if err != nil {
				return nil, err
			}
			return map[string]*tensor.Tensor{v.Masks: maskFn(in), v.Scores: scores}, nil
		},
	})

	f.session = NewSession(f.loader, v)
	require.NoError(t, f.session.LoadModels("encoder.onnx", "decoder.onnx", false))
	return f
}

// leftHalfMasks returns [1,3,h,w] logits where candidate 1 covers the left
// half of the first validW columns and the others are empty.
func leftHalfMasks(h, w, validW int) func(map[string]*tensor.Tensor) *tensor.Tensor {
	return func(map[string]*tensor.Tensor) *tensor.Tensor {
		m := tensor.New(1, 3, int64(h), int64(w))
		for i := range m.Data {
			m.Data[i] = -10
		}
		for y := 0; y < h; y++ {
			for x := 0; x < validW/2; x++ {
				m.Data[1*h*w+y*w+x] = 10
			}
		}
		return m
	}
}

func sourceImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

func TestPredictBeforeEncode(t *testing.T) {
	s := NewSession(inference.NewMockLoader(), MobileSAM)
	_, err := s.Predict(10, 10)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, ErrUsage)
	assert.NotErrorIs(t, err, inference.ErrConfig)

	_, err = s.MaskImage(0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEncodeWithoutModels(t *testing.T) {
	s := NewSession(inference.NewMockLoader(), MobileSAM)
	err := s.EncodeImage(sourceImage(8, 8))
	assert.ErrorIs(t, err, inference.ErrModelNotLoaded)
	assert.ErrorIs(t, err, inference.ErrConfig)
	assert.Equal(t, Empty, s.State())
}

func TestMobileSAM_PredictAndRender(t *testing.T) {
	v := smallVariant(MobileSAM)
	f := newFixture(t, v, leftHalfMasks(64, 128, 128))
	s := f.session
	assert.Equal(t, inference.DeviceCPU, s.Device())
	assert.NotEqual(t, uuid.Nil, s.ModelID())

	require.NoError(t, s.EncodeImage(sourceImage(128, 64)))
	assert.Equal(t, Encoded, s.State())

	pred, err := s.Predict(100, 40)
	require.NoError(t, err)
	assert.Equal(t, Predicted, s.State())
	assert.Equal(t, []float32{0.2, 0.9, 0.5}, pred.Scores)
	assert.Equal(t, 1, pred.BestIndex)
	assert.Equal(t, []int{1, 2, 0}, pred.Ranked)
	assert.Same(t, pred, s.Last())

	in := f.decoder.LastInputs()
	// 128x64 letterboxed into 64x64 halves the coordinates
	assert.Equal(t, []float32{50, 20, 0, 0}, in[v.PointCoords].Data)
	assert.Equal(t, []int64{1, 2, 2}, in[v.PointCoords].Shape)
	assert.Equal(t, []float32{1, -1}, in[v.PointLabels].Data)
	assert.Equal(t, []float32{64, 128}, in[v.OrigSize].Data)
	assert.Equal(t, []int64{1, 1, 16, 16}, in[v.MaskInput].Shape)
	assert.Equal(t, []float32{0}, in[v.HasMaskInput].Data)
	assert.Equal(t, []int64{1, 1, 2, 2}, in["image_embeddings"].Shape)

	enc := f.encoder.LastInputs()["image"]
	assert.Equal(t, []int64{1, 3, 64, 64}, enc.Shape)

	overlay, err := s.MaskImage(1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 128, 64), overlay.Bounds())
	assert.Equal(t, DefaultOverlay, overlay.NRGBAAt(10, 10))
	assert.Equal(t, color.NRGBA{}, overlay.NRGBAAt(120, 10))

	empty, err := s.MaskImage(0)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{}, empty.NRGBAAt(10, 10))

	m, err := s.Mask(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, Coverage(m), 1e-9)

	// re-render does not rerun the decoder
	assert.Equal(t, 1, f.decoder.Calls())
}

func TestSAM2_LowResMasksAreCroppedAndUpsampled(t *testing.T) {
	v := smallVariant(SAM2)
	// 128x64 source fills 64x32 of the letterbox; in 16x16 masks that is 16x8
	f := newFixture(t, v, func(map[string]*tensor.Tensor) *tensor.Tensor {
		m := tensor.New(1, 3, 16, 16)
		for i := range m.Data {
			m.Data[i] = -10
		}
		for y := 0; y < 16; y++ {
			for x := 0; x < 8; x++ {
				m.Data[16*16+y*16+x] = 10
			}
		}
		return m
	})
	s := f.session

	require.NoError(t, s.EncodeImage(sourceImage(128, 64)))
	_, err := s.Predict(10, 10)
	require.NoError(t, err)

	in := f.decoder.LastInputs()
	for i, n := range v.Embeddings {
		assert.Equal(t, []int64{1, int64(i + 1), 2, 2}, in[n].Shape, n)
	}
	assert.NotContains(t, in, "orig_im_size")
	assert.Equal(t, []float32{1}, in[v.PointLabels].Data)

	m, err := s.Mask(1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 128, 64), m.Bounds())
	assert.GreaterOrEqual(t, m.GrayAt(10, 10).Y, uint8(Foreground))
	assert.GreaterOrEqual(t, m.GrayAt(10, 60).Y, uint8(Foreground))
	assert.Less(t, m.GrayAt(120, 10).Y, uint8(Foreground))
	assert.InDelta(t, 0.5, Coverage(m), 0.05)
}

func TestReencodeInvalidatesCandidates(t *testing.T) {
	f := newFixture(t, smallVariant(MobileSAM), leftHalfMasks(32, 32, 32))
	s := f.session

	require.NoError(t, s.EncodeImage(sourceImage(32, 32)))
	_, err := s.Predict(5, 5)
	require.NoError(t, err)
	_, err = s.MaskImage(0)
	require.NoError(t, err)

	require.NoError(t, s.EncodeImage(sourceImage(32, 32)))
	assert.Equal(t, Encoded, s.State())
	assert.Nil(t, s.Last())
	_, err = s.MaskImage(0)
	assert.ErrorIs(t, err, ErrInvalidState)

	// a fresh click works again
	_, err = s.Predict(5, 5)
	require.NoError(t, err)
}

func TestMaskIndexOutOfRange(t *testing.T) {
	f := newFixture(t, smallVariant(MobileSAM), leftHalfMasks(16, 16, 16))
	s := f.session
	require.NoError(t, s.EncodeImage(sourceImage(16, 16)))
	_, err := s.Predict(1, 1)
	require.NoError(t, err)

	for _, idx := range []int{-1, 3, 100} {
		_, err := s.MaskImage(idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", idx)
		assert.ErrorIs(t, err, ErrUsage)
	}
}

func TestPredict_NoCandidates(t *testing.T) {
	v := smallVariant(MobileSAM)
	f := newFixture(t, v, leftHalfMasks(64, 128, 128))
	f.decoder.RunFunc = func(map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
		return map[string]*tensor.Tensor{
			v.Masks:  tensor.New(1, 0, 64, 128),
			v.Scores: tensor.New(1, 0),
		}, nil
	}
	s := f.session
	require.NoError(t, s.EncodeImage(sourceImage(128, 64)))

	pred, err := s.Predict(10, 10)
	require.NoError(t, err)
	assert.Empty(t, pred.Scores)
	assert.Empty(t, pred.Ranked)
	assert.Equal(t, -1, pred.BestIndex)
	assert.Equal(t, Predicted, s.State())

	_, err = s.MaskImage(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSwitchingModelsForcesReencode(t *testing.T) {
	f := newFixture(t, smallVariant(MobileSAM), leftHalfMasks(16, 16, 16))
	s := f.session
	require.NoError(t, s.EncodeImage(sourceImage(16, 16)))
	_, err := s.Predict(1, 1)
	require.NoError(t, err)
	first := s.ModelID()

	require.NoError(t, s.LoadModels("encoder.onnx", "decoder.onnx", true))
	assert.NotEqual(t, first, s.ModelID())
	assert.Equal(t, Empty, s.State())
	assert.Equal(t, inference.DeviceGPU, s.Device())
	_, err = s.Predict(1, 1)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, s.SetVariant(smallVariant(SAM2)))
	assert.Equal(t, uuid.Nil, s.ModelID())
	assert.True(t, f.encoder.Closed())
	assert.True(t, f.decoder.Closed())
	err = s.EncodeImage(sourceImage(16, 16))
	assert.ErrorIs(t, err, inference.ErrModelNotLoaded)
}

func TestLoadModels_DecoderFailureReleasesEncoder(t *testing.T) {
	loader := inference.NewMockLoader()
	enc := loader.Register("encoder.onnx", &inference.MockSession{In: []string{"image"}})
	s := NewSession(loader, MobileSAM)

	err := s.LoadModels("encoder.onnx", "missing.onnx", false)
	assert.ErrorIs(t, err, inference.ErrModelPath)
	assert.True(t, enc.Closed())
	assert.Equal(t, inference.DeviceNone, s.Device())
}

func TestEncodeMissingEmbedding(t *testing.T) {
	v := smallVariant(SAM2)
	loader := inference.NewMockLoader()
	loader.Register("encoder.onnx", &inference.MockSession{
		In:     []string{"image"},
		Result: map[string]*tensor.Tensor{"image_embed": tensor.New(1, 1, 2, 2)},
	})
	loader.Register("decoder.onnx", &inference.MockSession{})
	s := NewSession(loader, v)
	require.NoError(t, s.LoadModels("encoder.onnx", "decoder.onnx", false))

	err := s.EncodeImage(sourceImage(8, 8))
	assert.ErrorIs(t, err, inference.ErrMissingOutput)
	assert.Equal(t, Empty, s.State())
}

func TestRank(t *testing.T) {
	assert.Equal(t, []int{1, 0, 2}, rank([]float32{0.5, 0.7, 0.5}))
	assert.Empty(t, rank(nil))
}

func TestPointFromRatio(t *testing.T) {
	x, y, ok := PointFromRatio(0.5, 0.25, image.Pt(200, 100))
	require.True(t, ok)
	assert.Equal(t, float32(100), x)
	assert.Equal(t, float32(25), y)

	_, _, ok = PointFromRatio(1.2, 0.5, image.Pt(200, 100))
	assert.False(t, ok)
	_, _, ok = PointFromRatio(0.5, -0.1, image.Pt(200, 100))
	assert.False(t, ok)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("SAM2")
	require.NoError(t, err)
	assert.Equal(t, "sam2", v.Name)
	v, err = ParseVariant("mobilesam")
	require.NoError(t, err)
	assert.True(t, v.PaddingPoint)
	_, err = ParseVariant("sam3")
	assert.Error(t, err)
}
