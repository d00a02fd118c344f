package hardware

import (
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// FakeShiftRegisters keeps both sides of the chains in memory: the
// "hardware" side set with SetHardwareInput and read with HardwareOutput,
// and the driver side exposed through ShiftRegisters.
type FakeShiftRegisters struct {
	mu     sync.Mutex
	cfg    types.ShiftRegisterConfig
	hwIn   [types.MaxShiftRegisters]byte
	in     [types.MaxShiftRegisters]byte
	out    [types.MaxShiftRegisters]byte
	hwOut  [types.MaxShiftRegisters]byte
	stats  ShiftStats
	refErr error
	fluErr error
}

var _ ShiftRegisters = (*FakeShiftRegisters)(nil)

func NewFakeShiftRegisters() *FakeShiftRegisters {
	return &FakeShiftRegisters{}
}

func (f *FakeShiftRegisters) Configure(cfg types.ShiftRegisterConfig) error {
	if err := checkChainConfig(cfg); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg = cfg
	f.in = [types.MaxShiftRegisters]byte{}
	f.out = [types.MaxShiftRegisters]byte{}
	if f.fluErr != nil {
		return f.fluErr
	}
	f.hwOut = f.out
	return nil
}

func (f *FakeShiftRegisters) RefreshInputs() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refErr != nil {
		f.stats.Errors++
		return f.refErr
	}
	f.in = f.hwIn
	f.stats.InputRefreshes++
	return nil
}

func (f *FakeShiftRegisters) InputBit(chip, bit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkAddress(chip, bit, f.cfg.NumInputRegisters); err != nil {
		return false, err
	}
	return f.in[chip]&(1<<bit) != 0, nil
}

func (f *FakeShiftRegisters) InputByte(chip int) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkChip(chip, f.cfg.NumInputRegisters); err != nil {
		return 0, err
	}
	return f.in[chip], nil
}

func (f *FakeShiftRegisters) SetOutputBit(chip, bit int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setOutputBitLocked(chip, bit, level)
}

func (f *FakeShiftRegisters) setOutputBitLocked(chip, bit int, level bool) error {
	if err := checkAddress(chip, bit, f.cfg.NumOutputRegisters); err != nil {
		return err
	}
	if level {
		f.out[chip] |= 1 << bit
	} else {
		f.out[chip] &^= 1 << bit
	}
	return nil
}

func (f *FakeShiftRegisters) OutputBit(chip, bit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkAddress(chip, bit, f.cfg.NumOutputRegisters); err != nil {
		return false, err
	}
	return f.out[chip]&(1<<bit) != 0, nil
}

func (f *FakeShiftRegisters) SetOutputByte(chip int, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkChip(chip, f.cfg.NumOutputRegisters); err != nil {
		return err
	}
	f.out[chip] = value
	return nil
}

func (f *FakeShiftRegisters) OutputByte(chip int) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := checkChip(chip, f.cfg.NumOutputRegisters); err != nil {
		return 0, err
	}
	return f.out[chip], nil
}

func (f *FakeShiftRegisters) FlushOutputs() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

func (f *FakeShiftRegisters) flushLocked() error {
	if f.fluErr != nil {
		f.stats.Errors++
		return f.fluErr
	}
	f.hwOut = f.out
	f.stats.OutputFlushes++
	return nil
}

func (f *FakeShiftRegisters) WriteOutputBit(chip, bit int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.out
	if err := f.setOutputBitLocked(chip, bit, level); err != nil {
		return err
	}
	if err := f.flushLocked(); err != nil {
		f.out = prev
		return err
	}
	return nil
}

func (f *FakeShiftRegisters) Stats() ShiftStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// SetHardwareInput sets the parallel inputs of one input chip. The value is
// visible to InputBit after the next RefreshInputs.
func (f *FakeShiftRegisters) SetHardwareInput(chip int, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hwIn[chip] = value
}

// HardwareOutput returns the last flushed byte of one output chip.
func (f *FakeShiftRegisters) HardwareOutput(chip int) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hwOut[chip]
}

func (f *FakeShiftRegisters) FailRefresh(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refErr = err
}

func (f *FakeShiftRegisters) FailFlush(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fluErr = err
}
