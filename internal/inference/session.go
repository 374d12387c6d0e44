package inference

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/aivision/internal/tensor"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// DefaultLibraryPath is the onnxruntime shared library looked up when no path
// is configured.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// Initialize sets up the ONNX Runtime environment. Repeated calls are no-ops.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: failed to initialize ONNX Runtime from %s: %w", ErrConfig, libraryPath, err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// ORTLoader loads ONNX models through onnxruntime.
type ORTLoader struct {
	LibraryPath    string
	IntraOpThreads int
	Logger         logrus.FieldLogger
}

// NewORTLoader returns a loader using the given shared library.
func NewORTLoader(libraryPath string, logger logrus.FieldLogger) *ORTLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ORTLoader{LibraryPath: libraryPath, Logger: logger}
}

// Load opens modelPath. With preferGPU it tries the platform GPU provider
// first (CoreML on macOS, CUDA elsewhere) and falls back to the CPU.
func (l *ORTLoader) Load(modelPath string, preferGPU bool) (Session, error) {
	if err := Initialize(l.LibraryPath); err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelPath, modelPath, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model info for %s: %w", ErrConfig, modelPath, err)
	}
	inNames := make([]string, len(inputs))
	for i, info := range inputs {
		inNames[i] = info.Name
	}
	outNames := make([]string, len(outputs))
	for i, info := range outputs {
		outNames[i] = info.Name
	}

	log := l.logger().WithField("model", modelPath)
	device := DeviceCPU
	var sess *ort.DynamicAdvancedSession

	if preferGPU {
		sess, err = l.newSession(modelPath, inNames, outNames, true)
		if err != nil {
			log.WithError(err).Warn("GPU provider unavailable, falling back to CPU")
			device = DeviceCPUFallback
			sess = nil
		} else {
			device = DeviceGPU
		}
	}
	if sess == nil {
		sess, err = l.newSession(modelPath, inNames, outNames, false)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create session for %s: %w", ErrConfig, modelPath, err)
		}
	}

	log.WithFields(logrus.Fields{
		"device":  device,
		"inputs":  inNames,
		"outputs": outNames,
	}).Info("model loaded")

	return &ortSession{
		session: sess,
		path:    modelPath,
		inputs:  inputs,
		outputs: outputs,
		device:  device,
	}, nil
}

func (l *ORTLoader) logger() logrus.FieldLogger {
	if l.Logger == nil {
		return logrus.StandardLogger()
	}
	return l.Logger
}

func (l *ORTLoader) newSession(path string, inNames, outNames []string, gpu bool) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if l.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(l.IntraOpThreads); err != nil {
			return nil, err
		}
	}
	if gpu {
		if err := appendGPUProvider(options); err != nil {
			return nil, err
		}
	}

	return ort.NewDynamicAdvancedSession(path, inNames, outNames, options)
}

func appendGPUProvider(options *ort.SessionOptions) error {
	if runtime.GOOS == "darwin" {
		// 0 = default flags, Neural Engine + GPU
		return options.AppendExecutionProviderCoreML(0)
	}

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cuda)
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
	path    string
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
	device  DeviceMode
}

func (s *ortSession) InputNames() []string {
	names := make([]string, len(s.inputs))
	for i, info := range s.inputs {
		names[i] = info.Name
	}
	return names
}

func (s *ortSession) OutputNames() []string {
	names := make([]string, len(s.outputs))
	for i, info := range s.outputs {
		names[i] = info.Name
	}
	return names
}

func (s *ortSession) Device() DeviceMode { return s.device }

func (s *ortSession) Run(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	if s.session == nil {
		return nil, ErrModelNotLoaded
	}

	values := make([]ort.Value, len(s.inputs))
	defer destroyAll(values)

	for i, info := range s.inputs {
		t, ok := inputs[info.Name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, info.Name)
		}
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("%w: input %q is %v", ErrUnsupportedType, info.Name, info.DataType)
		}
		if err := CheckShape(info.Dimensions, t.Shape); err != nil {
			return nil, fmt.Errorf("input %q: %w", info.Name, err)
		}
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor %q: %w", info.Name, err)
		}
		values[i] = v
	}

	// nil outputs are allocated by onnxruntime
	outs := make([]ort.Value, len(s.outputs))
	if err := s.session.Run(values, outs); err != nil {
		destroyAll(outs)
		return nil, fmt.Errorf("inference failed for %s: %w", s.path, err)
	}
	defer destroyAll(outs)

	result := make(map[string]*tensor.Tensor, len(outs))
	for i, v := range outs {
		name := s.outputs[i].Name
		ft, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%w: output %q", ErrUnsupportedType, name)
		}
		shape := ft.GetShape()
		result[name] = &tensor.Tensor{
			Shape: append([]int64(nil), shape...),
			Data:  append([]float32(nil), ft.GetData()...),
		}
	}
	return result, nil
}

func (s *ortSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func destroyAll(values []ort.Value) {
	var errs []error
	for _, v := range values {
		if v != nil {
			errs = append(errs, v.Destroy())
		}
	}
	if err := errors.Join(errs...); err != nil {
		logrus.WithError(err).Debug("failed to release tensor")
	}
}
