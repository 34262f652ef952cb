// FILE: loglayer/src/internal/layer/errors.go
package layer

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInstalled is returned when a global pipeline is already in place
	ErrAlreadyInstalled = errors.New("logging pipeline already installed")

	// ErrLayerGone is returned when the layer behind a handle was torn down
	ErrLayerGone = errors.New("layer no longer exists")
)

// ReloadError reports a failed filter swap. The layer keeps its last good filter.
type ReloadError struct {
	Layer string
	Err   error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload filter of layer %q: %v", e.Layer, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
