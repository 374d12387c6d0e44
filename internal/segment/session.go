// Package segment implements point-prompted segmentation with an
// encode-once, predict-many session.
//
// A Session moves through three states:
//
//	Empty --EncodeImage--> Encoded --Predict--> Predicted
//
// EncodeImage is accepted in every state and always discards previous mask
// candidates. LoadModels and SetVariant return the session to Empty. A
// Session is not safe for concurrent use.
package segment

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// State is the lifecycle position of a Session.
type State int

const (
	Empty State = iota
	Encoded
	Predicted
)

func (s State) String() string {
	switch s {
	case Encoded:
		return "encoded"
	case Predicted:
		return "predicted"
	default:
		return "empty"
	}
}

// DefaultOverlay is the colour masks are rendered in.
var DefaultOverlay = color.NRGBA{R: 30, G: 144, B: 255, A: 153}

// embedding is the encoder output for one image, bound to the model pair
// that produced it.
type embedding struct {
	modelID uuid.UUID
	tensors map[string]*tensor.Tensor
	frame   tensor.Frame
}

// Prediction is the ranked candidate set of one click.
type Prediction struct {
	// Scores holds the predicted mask quality of each candidate, in model
	// output order.
	Scores []float32
	// BestIndex is the candidate the model scored highest, -1 when the
	// decoder returned no candidates.
	BestIndex int
	// Ranked lists candidate indices by descending score.
	Ranked []int
	// Point is the click in source pixels.
	Point [2]float32
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithOverlay sets the mask render colour.
func WithOverlay(c color.NRGBA) Option {
	return func(s *Session) { s.overlay = c }
}

// Session runs an encoder once per image and the decoder once per click.
type Session struct {
	loader  inference.Loader
	variant Variant
	log     logrus.FieldLogger
	overlay color.NRGBA

	encoder inference.Session
	decoder inference.Session
	modelID uuid.UUID

	state State
	emb   *embedding
	pred  *Prediction
	masks []*image.Gray
}

// NewSession returns an empty session. Models are loaded with LoadModels.
func NewSession(loader inference.Loader, variant Variant, opts ...Option) *Session {
	s := &Session{
		loader:  loader,
		variant: variant,
		log:     logrus.StandardLogger(),
		overlay: DefaultOverlay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State { return s.state }

// Variant reports the active model contract.
func (s *Session) Variant() Variant { return s.variant }

// ModelID identifies the loaded encoder/decoder pair. It is uuid.Nil when no
// models are loaded.
func (s *Session) ModelID() uuid.UUID { return s.modelID }

// Device reports where the encoder runs.
func (s *Session) Device() inference.DeviceMode {
	if s.encoder == nil {
		return inference.DeviceNone
	}
	return s.encoder.Device()
}

// LoadModels replaces the encoder and decoder. The previous pair is released
// first and the session returns to Empty whatever the outcome.
func (s *Session) LoadModels(encoderPath, decoderPath string, useGPU bool) error {
	if err := s.release(); err != nil {
		s.log.WithError(err).Warn("failed to release previous segmentation models")
	}

	enc, err := s.loader.Load(encoderPath, useGPU)
	if err != nil {
		return fmt.Errorf("failed to load encoder: %w", err)
	}
	dec, err := s.loader.Load(decoderPath, useGPU)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to load decoder: %w", err), enc.Close())
	}

	s.encoder, s.decoder = enc, dec
	s.modelID = uuid.New()
	s.log.WithFields(logrus.Fields{
		"variant":  s.variant.Name,
		"model_id": s.modelID,
		"device":   enc.Device(),
	}).Info("segmentation models loaded")
	return nil
}

// SetVariant switches the model contract. Loaded models are released; the
// new pair must be loaded before encoding.
func (s *Session) SetVariant(v Variant) error {
	s.variant = v
	return s.release()
}

// Close releases the models.
func (s *Session) Close() error {
	return s.release()
}

func (s *Session) release() error {
	s.reset()
	var errs []error
	if s.encoder != nil {
		errs = append(errs, s.encoder.Close())
	}
	if s.decoder != nil {
		errs = append(errs, s.decoder.Close())
	}
	s.encoder, s.decoder = nil, nil
	s.modelID = uuid.Nil
	return errors.Join(errs...)
}

func (s *Session) reset() {
	s.state = Empty
	s.emb = nil
	s.pred = nil
	s.masks = nil
}

// EncodeImage computes and stores the embedding of img. Any previous
// embedding and mask candidates are discarded, also when encoding fails.
func (s *Session) EncodeImage(img image.Image) error {
	s.reset()
	if s.encoder == nil || s.decoder == nil {
		return inference.ErrModelNotLoaded
	}

	size := s.variant.InputSize
	input, frame, err := tensor.ImageToTensor(img, tensor.Spec{
		Width:     size,
		Height:    size,
		Layout:    tensor.LayoutNCHW,
		Norm:      tensor.NormImageNet,
		Letterbox: true,
	})
	if err != nil {
		return err
	}
	name, err := inference.FirstInput(s.encoder)
	if err != nil {
		return err
	}

	outputs, err := s.encoder.Run(map[string]*tensor.Tensor{name: input})
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	emb := &embedding{
		modelID: s.modelID,
		tensors: make(map[string]*tensor.Tensor, len(s.variant.Embeddings)),
		frame:   frame,
	}
	for _, n := range s.variant.Embeddings {
		t, err := inference.Output(outputs, n)
		if err != nil {
			return err
		}
		emb.tensors[n] = t
	}

	s.emb = emb
	s.state = Encoded
	s.log.WithFields(logrus.Fields{
		"model_id": s.modelID,
		"size":     frame.Source,
	}).Debug("image encoded")
	return nil
}

// Predict decodes masks for a click at (x, y) in source pixels. It needs a
// stored embedding from the currently loaded models.
func (s *Session) Predict(x, y float32) (*Prediction, error) {
	if s.state == Empty || s.emb == nil {
		return nil, fmt.Errorf("%w: predict requires an encoded image (state %s)", ErrInvalidState, s.state)
	}
	if s.emb.modelID != s.modelID || s.decoder == nil {
		return nil, fmt.Errorf("%w: embedding belongs to another model", ErrInvalidState)
	}

	outputs, err := s.decoder.Run(s.decoderInputs(x, y))
	if err != nil {
		return nil, fmt.Errorf("failed to decode masks: %w", err)
	}
	masksT, err := inference.Output(outputs, s.variant.Masks)
	if err != nil {
		return nil, err
	}
	scoresT, err := inference.Output(outputs, s.variant.Scores)
	if err != nil {
		return nil, err
	}

	masks, err := s.renderMasks(masksT)
	if err != nil {
		return nil, err
	}
	if len(scoresT.Data) != len(masks) {
		return nil, fmt.Errorf("%w: %d scores for %d masks", tensor.ErrShape, len(scoresT.Data), len(masks))
	}

	scores := append([]float32(nil), scoresT.Data...)
	pred := &Prediction{
		Scores:    scores,
		BestIndex: -1,
		Ranked:    rank(scores),
		Point:     [2]float32{x, y},
	}
	if len(pred.Ranked) > 0 {
		pred.BestIndex = pred.Ranked[0]
	}

	s.pred = pred
	s.masks = masks
	s.state = Predicted
	return pred, nil
}

func (s *Session) decoderInputs(x, y float32) map[string]*tensor.Tensor {
	v := s.variant
	inputs := make(map[string]*tensor.Tensor, len(s.emb.tensors)+5)
	for n, t := range s.emb.tensors {
		inputs[n] = t
	}

	tx, ty := s.emb.frame.ToTensor(x, y)
	coords := []float32{tx, ty}
	labels := []float32{1}
	if v.PaddingPoint {
		coords = append(coords, 0, 0)
		labels = append(labels, -1)
	}
	n := int64(len(labels))
	inputs[v.PointCoords] = &tensor.Tensor{Shape: []int64{1, n, 2}, Data: coords}
	inputs[v.PointLabels] = &tensor.Tensor{Shape: []int64{1, n}, Data: labels}

	m := v.maskInputSize()
	inputs[v.MaskInput] = tensor.New(1, 1, m, m)
	inputs[v.HasMaskInput] = tensor.New(1)
	if v.OrigSize != "" {
		src := s.emb.frame.Source
		inputs[v.OrigSize] = &tensor.Tensor{
			Shape: []int64{2},
			Data:  []float32{float32(src.Y), float32(src.X)},
		}
	}
	return inputs
}

// rank orders candidate indices by descending score, ties in index order.
func rank(scores []float32) []int {
	idx := lo.Range(len(scores))
	sort.SliceStable(idx, func(i, j int) bool {
		return scores[idx[i]] > scores[idx[j]]
	})
	return idx
}

// Last returns the most recent prediction, or nil outside Predicted.
func (s *Session) Last() *Prediction {
	if s.state != Predicted {
		return nil
	}
	return s.pred
}

// Mask returns candidate index as a probability mask at source resolution.
func (s *Session) Mask(index int) (*image.Gray, error) {
	if s.state != Predicted {
		return nil, fmt.Errorf("%w: no mask candidates (state %s)", ErrInvalidState, s.state)
	}
	if index < 0 || index >= len(s.masks) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(s.masks))
	}
	return s.masks[index], nil
}

// MaskImage renders candidate index as an overlay: the overlay colour where
// the mask is foreground, transparent elsewhere. The decoder is not rerun.
func (s *Session) MaskImage(index int) (*image.NRGBA, error) {
	m, err := s.Mask(index)
	if err != nil {
		return nil, err
	}
	return Overlay(m, s.overlay), nil
}
