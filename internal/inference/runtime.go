// Package inference is the tensor-session layer: it loads a model, picks the
// execution device and runs named float32 tensors through it.
package inference

import (
	"fmt"

	"github.com/dudu/aivision/internal/tensor"
)

// DeviceMode is where a loaded session executes. It is fixed at load time.
type DeviceMode string

const (
	DeviceNone        DeviceMode = "None"
	DeviceCPU         DeviceMode = "CPU"
	DeviceGPU         DeviceMode = "GPU"
	DeviceCPUFallback DeviceMode = "CPU (Fallback)"
)

// IsFallback reports whether a GPU was requested but could not be acquired.
func (d DeviceMode) IsFallback() bool {
	return d == DeviceCPUFallback
}

// Session is a loaded model. It is not safe for concurrent use.
type Session interface {
	// Run executes the model. Inputs and outputs are keyed by tensor name.
	Run(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
	// InputNames lists the declared inputs in model order.
	InputNames() []string
	// OutputNames lists the declared outputs in model order.
	OutputNames() []string
	// Device reports where the session executes.
	Device() DeviceMode
	// Close releases the native session.
	Close() error
}

// Loader creates sessions. A GPU that cannot be acquired is not an error: the
// session comes back on the CPU with DeviceCPUFallback.
type Loader interface {
	Load(modelPath string, preferGPU bool) (Session, error)
}

// FirstInput returns the name of the model's first declared input.
func FirstInput(s Session) (string, error) {
	names := s.InputNames()
	if len(names) == 0 {
		return "", fmt.Errorf("%w: model declares no inputs", ErrMissingInput)
	}
	return names[0], nil
}

// Output fetches a named output from a Run result.
func Output(outputs map[string]*tensor.Tensor, name string) (*tensor.Tensor, error) {
	t, ok := outputs[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingOutput, name)
	}
	return t, nil
}

// FirstOutput fetches the output declared first by the session.
func FirstOutput(s Session, outputs map[string]*tensor.Tensor) (*tensor.Tensor, error) {
	names := s.OutputNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: model declares no outputs", ErrMissingOutput)
	}
	return Output(outputs, names[0])
}

// CheckShape compares a tensor shape against the dims a model declares.
// Negative declared dims are dynamic and match any size.
func CheckShape(declared, got []int64) error {
	if len(declared) != len(got) {
		return fmt.Errorf("%w: want %v, got %v", ErrShapeMismatch, declared, got)
	}
	for i, d := range declared {
		if d >= 0 && d != got[i] {
			return fmt.Errorf("%w: want %v, got %v", ErrShapeMismatch, declared, got)
		}
	}
	return nil
}
