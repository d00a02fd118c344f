//go:build !linux

package cdev

import (
	"errors"

	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
)

// GPIO is not available on non-Linux platforms.
type GPIO struct{}

var _ hardware.GPIO = (*GPIO)(nil)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

func Open(chipName string) (*GPIO, error) {
	return nil, errUnsupported
}

func (g *GPIO) ConfigureInput(pin int, pullUp bool) error { return errUnsupported }
func (g *GPIO) ConfigureOutput(pin int, level bool) error { return errUnsupported }
func (g *GPIO) ConfigureAnalog(pin int) error             { return errUnsupported }
func (g *GPIO) ReadDigital(pin int) (bool, error)         { return false, errUnsupported }
func (g *GPIO) WriteDigital(pin int, level bool) error    { return errUnsupported }
func (g *GPIO) ReadAnalog(pin int) (uint16, error)        { return 0, errUnsupported }
func (g *GPIO) Close() error                              { return nil }
