// Package hardware abstracts the controller's pins and shift-register chains.
//
// The IO manager talks only to the GPIO and ShiftRegisters interfaces. Fake
// backends keep all state in memory and are used by tests and by the
// daemon when no hardware is attached; Chain bit-bangs 74HC595/74HC165
// cascades over any GPIO implementation.
package hardware

import (
	"fmt"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// GPIO is pin-level access by pin number.
type GPIO interface {
	ConfigureInput(pin int, pullUp bool) error
	ConfigureOutput(pin int, level bool) error
	ConfigureAnalog(pin int) error
	ReadDigital(pin int) (bool, error)
	WriteDigital(pin int, level bool) error
	ReadAnalog(pin int) (uint16, error)
}

// AnalogReader is the analog half of GPIO, for backends that only sample.
type AnalogReader interface {
	ConfigureAnalog(pin int) error
	ReadAnalog(pin int) (uint16, error)
}

// ShiftRegisters is byte-level access to the expanded IO chains.
// Output changes are staged until FlushOutputs; input reads return the
// values captured by the last RefreshInputs.
type ShiftRegisters interface {
	Configure(cfg types.ShiftRegisterConfig) error
	RefreshInputs() error
	InputBit(chip, bit int) (bool, error)
	InputByte(chip int) (byte, error)
	SetOutputBit(chip, bit int, level bool) error
	OutputBit(chip, bit int) (bool, error)
	SetOutputByte(chip int, value byte) error
	OutputByte(chip int) (byte, error)
	FlushOutputs() error
	// WriteOutputBit stages one bit and flushes the chain in a single
	// transaction.
	WriteOutputBit(chip, bit int, level bool) error
	Stats() ShiftStats
}

type ShiftStats struct {
	InputRefreshes uint64 `json:"input_refreshes"`
	OutputFlushes  uint64 `json:"output_flushes"`
	Errors         uint64 `json:"errors"`
	LockTimeouts   uint64 `json:"lock_timeouts"`
}

type PinMode int

const (
	PinUnconfigured PinMode = iota
	PinInput
	PinOutput
	PinAnalog
)

func (m PinMode) String() string {
	switch m {
	case PinInput:
		return "INPUT"
	case PinOutput:
		return "OUTPUT"
	case PinAnalog:
		return "ANALOG"
	default:
		return "UNCONFIGURED"
	}
}

func checkAddress(chip, bit, chips int) error {
	if chip < 0 || chip >= chips {
		return fmt.Errorf("chip %d outside chain of %d: %w", chip, chips, types.ErrInvalidArgument)
	}
	if bit < 0 || bit > 7 {
		return fmt.Errorf("bit %d outside 0-7: %w", bit, types.ErrInvalidArgument)
	}
	return nil
}

func checkChip(chip, chips int) error {
	if chip < 0 || chip >= chips {
		return fmt.Errorf("chip %d outside chain of %d: %w", chip, chips, types.ErrInvalidArgument)
	}
	return nil
}

func checkChainConfig(cfg types.ShiftRegisterConfig) error {
	if cfg.NumOutputRegisters < 0 || cfg.NumOutputRegisters > types.MaxShiftRegisters {
		return fmt.Errorf("%d output registers, max %d: %w",
			cfg.NumOutputRegisters, types.MaxShiftRegisters, types.ErrInvalidArgument)
	}
	if cfg.NumInputRegisters < 0 || cfg.NumInputRegisters > types.MaxShiftRegisters {
		return fmt.Errorf("%d input registers, max %d: %w",
			cfg.NumInputRegisters, types.MaxShiftRegisters, types.ErrInvalidArgument)
	}
	return nil
}
