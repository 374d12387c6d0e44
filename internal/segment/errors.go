package segment

import (
	"errors"
	"fmt"
)

// ErrUsage is the root of caller errors: operations invoked in the wrong
// state or with bad arguments. It never wraps inference.ErrConfig.
var ErrUsage = errors.New("usage error")

var (
	ErrInvalidState    = fmt.Errorf("%w: invalid state", ErrUsage)
	ErrIndexOutOfRange = fmt.Errorf("%w: mask index out of range", ErrUsage)
)
