// Package errdefs holds the error roots shared by the tensor, detection and
// inference layers, so a caller can classify any failure with errors.Is
// without importing the runtime.
package errdefs

import (
	"errors"
	"fmt"
)

// ErrConfig is the root of every configuration error: a missing model, a bad
// path or a tensor that does not fit the model contract. These are fatal to
// the call and never retried.
var ErrConfig = errors.New("configuration error")

var (
	// ErrShape reports a tensor whose shape does not fit the expected contract.
	ErrShape = fmt.Errorf("%w: tensor shape mismatch", ErrConfig)
	// ErrMissingOutput reports a model output the caller expected by name.
	ErrMissingOutput = fmt.Errorf("%w: missing model output", ErrConfig)
)
