package inference

import (
	"fmt"
	"sync"

	"github.com/dudu/aivision/internal/tensor"
)

// MockSession is an in-memory Session for tests. RunFunc computes outputs;
// when nil, Run returns Result.
type MockSession struct {
	In      []string
	Out     []string
	RunFunc func(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
	Result  map[string]*tensor.Tensor

	mu     sync.Mutex
	device DeviceMode
	calls  int
	last   map[string]*tensor.Tensor
	closed bool
}

func (m *MockSession) InputNames() []string  { return m.In }
func (m *MockSession) OutputNames() []string { return m.Out }

func (m *MockSession) Device() DeviceMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

func (m *MockSession) Run(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrModelNotLoaded
	}
	m.calls++
	m.last = inputs
	m.mu.Unlock()

	for _, name := range m.In {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, name)
		}
	}
	if m.RunFunc != nil {
		return m.RunFunc(inputs)
	}
	return m.Result, nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls is the number of Run invocations.
func (m *MockSession) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastInputs is the input map of the most recent Run.
func (m *MockSession) LastInputs() map[string]*tensor.Tensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Closed reports whether Close was called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLoader hands out registered MockSessions by path.
type MockLoader struct {
	Sessions map[string]*MockSession
	// NoGPU makes GPU requests fall back to the CPU.
	NoGPU bool

	mu     sync.Mutex
	loaded []string
}

// NewMockLoader returns a loader with no registered models.
func NewMockLoader() *MockLoader {
	return &MockLoader{Sessions: make(map[string]*MockSession)}
}

// Register adds a session under path.
func (l *MockLoader) Register(path string, s *MockSession) *MockSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Sessions[path] = s
	return s
}

func (l *MockLoader) Load(path string, preferGPU bool) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.Sessions[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelPath, path)
	}
	l.loaded = append(l.loaded, path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	switch {
	case !preferGPU:
		s.device = DeviceCPU
	case l.NoGPU:
		s.device = DeviceCPUFallback
	default:
		s.device = DeviceGPU
	}
	return s, nil
}

// Loaded lists the paths loaded so far, in order.
func (l *MockLoader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.loaded...)
}
