//go:build linux

// Package cdev drives GPIO lines through the Linux GPIO character device.
package cdev

import (
	"fmt"
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"github.com/warthog618/go-gpiocdev"
)

// GPIO owns one gpiochip and the lines requested from it. Analog input is
// not available on a character device; pair it with an AnalogReader via
// hardware.NewBoard.
type GPIO struct {
	chip  *gpiocdev.Chip
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

var _ hardware.GPIO = (*GPIO)(nil)

func Open(chipName string) (*GPIO, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	return &GPIO{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

func (g *GPIO) ConfigureInput(pin int, pullUp bool) error {
	bias := gpiocdev.WithBiasDisabled
	if pullUp {
		bias = gpiocdev.WithPullUp
	}
	return g.request(pin, gpiocdev.AsInput, bias)
}

func (g *GPIO) ConfigureOutput(pin int, level bool) error {
	return g.request(pin, gpiocdev.AsOutput(toValue(level)))
}

func (g *GPIO) ConfigureAnalog(pin int) error {
	return fmt.Errorf("gpio character device has no analog input on pin %d: %w",
		pin, types.ErrInvalidArgument)
}

func (g *GPIO) ReadDigital(pin int) (bool, error) {
	line, err := g.line(pin)
	if err != nil {
		return false, err
	}

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w: %w", pin, types.ErrHardwareFault, err)
	}
	return v != 0, nil
}

func (g *GPIO) WriteDigital(pin int, level bool) error {
	line, err := g.line(pin)
	if err != nil {
		return err
	}

	if err := line.SetValue(toValue(level)); err != nil {
		return fmt.Errorf("write pin %d: %w: %w", pin, types.ErrHardwareFault, err)
	}
	return nil
}

func (g *GPIO) ReadAnalog(pin int) (uint16, error) {
	return 0, g.ConfigureAnalog(pin)
}

// Close returns every requested line to input and releases the chip.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for pin, line := range g.lines {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	g.lines = make(map[int]*gpiocdev.Line)

	if err := g.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (g *GPIO) request(pin int, opts ...gpiocdev.LineReqOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if line, ok := g.lines[pin]; ok {
		cfg := make([]gpiocdev.LineConfigOption, 0, len(opts))
		for _, o := range opts {
			if co, ok := o.(gpiocdev.LineConfigOption); ok {
				cfg = append(cfg, co)
			}
		}
		if err := line.Reconfigure(cfg...); err != nil {
			return fmt.Errorf("reconfigure pin %d: %w: %w", pin, types.ErrHardwareFault, err)
		}
		return nil
	}

	line, err := g.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("request pin %d: %w: %w", pin, types.ErrHardwareFault, err)
	}
	g.lines[pin] = line
	return nil
}

func (g *GPIO) line(pin int) (*gpiocdev.Line, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	line, ok := g.lines[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d not configured: %w", pin, types.ErrInvalidState)
	}
	return line, nil
}

func toValue(level bool) int {
	if level {
		return 1
	}
	return 0
}
