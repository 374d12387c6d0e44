package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudu/aivision/internal/inference"
	"github.com/dudu/aivision/internal/tensor"
)

// ErrImageTooSmall is returned when an image cannot fit a model's minimum size.
var ErrImageTooSmall = errors.New("image too small")

// model owns one inference session. Loading releases the previous session
// before acquiring the next.
type model struct {
	name    string
	loader  inference.Loader
	log     logrus.FieldLogger
	session inference.Session
	path    string
}

func newModel(name string, loader inference.Loader, log logrus.FieldLogger) model {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return model{name: name, loader: loader, log: log.WithField("engine", name)}
}

// Load replaces the current model with the one at modelPath.
func (m *model) Load(modelPath string, useGPU bool) error {
	if err := m.Close(); err != nil {
		m.log.WithError(err).Warn("failed to release previous model")
	}

	s, err := m.loader.Load(modelPath, useGPU)
	if err != nil {
		return fmt.Errorf("failed to load %s model: %w", m.name, err)
	}
	m.session = s
	m.path = modelPath
	if s.Device().IsFallback() {
		m.log.WithField("model", modelPath).Warn("GPU requested but running on CPU")
	}
	return nil
}

// Device reports where the model runs, DeviceNone when nothing is loaded.
func (m *model) Device() inference.DeviceMode {
	if m.session == nil {
		return inference.DeviceNone
	}
	return m.session.Device()
}

// ModelPath is the path of the loaded model.
func (m *model) ModelPath() string { return m.path }

// Close releases the session.
func (m *model) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	m.path = ""
	return err
}

func (m *model) ready() (inference.Session, error) {
	if m.session == nil {
		return nil, fmt.Errorf("%s: %w", m.name, inference.ErrModelNotLoaded)
	}
	return m.session, nil
}

// run feeds input to the first declared input and returns every output.
func (m *model) run(input *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	s, err := m.ready()
	if err != nil {
		return nil, err
	}
	name, err := inference.FirstInput(s)
	if err != nil {
		return nil, err
	}
	return m.runNamed(name, input)
}

func (m *model) runNamed(name string, input *tensor.Tensor) (map[string]*tensor.Tensor, error) {
	s, err := m.ready()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	outputs, err := s.Run(map[string]*tensor.Tensor{name: input})
	if err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", m.name, err)
	}
	m.log.WithFields(logrus.Fields{
		"shape":   input.Shape,
		"elapsed": time.Since(start),
	}).Debug("inference done")
	return outputs, nil
}

// runSingle runs input and returns the first declared output.
func (m *model) runSingle(input *tensor.Tensor) (*tensor.Tensor, error) {
	outputs, err := m.run(input)
	if err != nil {
		return nil, err
	}
	return inference.FirstOutput(m.session, outputs)
}
