//go:build !windows

package capture

import (
	"fmt"

	"github.com/voslund/inkboard/domain/source"
)

// NewBackend reports window capture as unavailable on this platform.
// Monitor capture does not need a GDI backend and remains usable.
func NewBackend() (Backend, error) {
	return nil, fmt.Errorf("%w: window capture requires windows", source.ErrSourceOpen)
}
