package inference

import (
	"fmt"

	"github.com/dudu/aivision/internal/errdefs"
)

// ErrConfig is the root of every configuration error. Shape errors raised by
// the tensor, detector, compositor and segment packages share it.
var ErrConfig = errdefs.ErrConfig

var (
	ErrModelNotLoaded  = fmt.Errorf("%w: model not loaded", ErrConfig)
	ErrModelPath       = fmt.Errorf("%w: invalid model path", ErrConfig)
	ErrShapeMismatch   = errdefs.ErrShape
	ErrMissingInput    = fmt.Errorf("%w: missing model input", ErrConfig)
	ErrMissingOutput   = errdefs.ErrMissingOutput
	ErrUnsupportedType = fmt.Errorf("%w: unsupported tensor element type", ErrConfig)
)
