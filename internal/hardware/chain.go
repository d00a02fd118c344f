package hardware

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/lock"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

// DefaultBitDelay is the settle time between clock edges.
const DefaultBitDelay = time.Microsecond

// Chain drives a 74HC595 output cascade and a 74HC165 input cascade by
// toggling GPIO pins. Every burst runs to completion under the chain lock;
// only the lock acquisition can time out.
type Chain struct {
	gpio     GPIO
	logger   *zap.Logger
	bitDelay time.Duration
	mu       *lock.Timed

	cfg types.ShiftRegisterConfig
	in  [types.MaxShiftRegisters]byte
	out [types.MaxShiftRegisters]byte

	refreshes    atomic.Uint64
	flushes      atomic.Uint64
	errors       atomic.Uint64
	lockTimeouts atomic.Uint64
}

var _ ShiftRegisters = (*Chain)(nil)

func NewChain(gpio GPIO, bitDelay, lockTimeout time.Duration, logger *zap.Logger) *Chain {
	return &Chain{
		gpio:     gpio,
		logger:   logger,
		bitDelay: bitDelay,
		mu:       lock.NewTimed(lockTimeout),
	}
}

// Configure sets up the chain pins, clears every output and enables the
// output drivers.
func (c *Chain) Configure(cfg types.ShiftRegisterConfig) error {
	if err := checkChainConfig(cfg); err != nil {
		return err
	}

	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.cfg = cfg
	c.in = [types.MaxShiftRegisters]byte{}
	c.out = [types.MaxShiftRegisters]byte{}

	if cfg.NumOutputRegisters > 0 {
		// Drivers stay disabled (OE high) until the zeroed pattern is latched.
		for _, p := range []struct {
			pin   int
			level bool
		}{
			{cfg.OutputClockPin, false},
			{cfg.OutputLatchPin, false},
			{cfg.OutputDataPin, false},
			{cfg.OutputEnablePin, true},
		} {
			if err := c.gpio.ConfigureOutput(p.pin, p.level); err != nil {
				return c.fault("configure output chain pin", err)
			}
		}
		if err := c.shiftOut(); err != nil {
			return err
		}
		if err := c.gpio.WriteDigital(cfg.OutputEnablePin, false); err != nil {
			return c.fault("enable output chain", err)
		}
	}

	if cfg.NumInputRegisters > 0 {
		if err := c.gpio.ConfigureOutput(cfg.InputClockPin, true); err != nil {
			return c.fault("configure input clock", err)
		}
		if err := c.gpio.ConfigureOutput(cfg.InputLoadPin, true); err != nil {
			return c.fault("configure input load", err)
		}
		if err := c.gpio.ConfigureInput(cfg.InputDataPin, true); err != nil {
			return c.fault("configure input data", err)
		}
	}

	c.logger.Info("Shift register chain configured",
		zap.Int("outputs", cfg.NumOutputRegisters),
		zap.Int("inputs", cfg.NumInputRegisters))

	return nil
}

// RefreshInputs pulses the load line and clocks every input chip in,
// highest chip first, MSB first.
func (c *Chain) RefreshInputs() error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	n := c.cfg.NumInputRegisters
	if n == 0 {
		return nil
	}

	if err := c.gpio.WriteDigital(c.cfg.InputLoadPin, false); err != nil {
		return c.fault("pulse load", err)
	}
	c.delay()
	if err := c.gpio.WriteDigital(c.cfg.InputLoadPin, true); err != nil {
		return c.fault("release load", err)
	}
	c.delay()

	var captured [types.MaxShiftRegisters]byte
	for chip := n - 1; chip >= 0; chip-- {
		var value byte
		for i := 0; i < 8; i++ {
			bit, err := c.gpio.ReadDigital(c.cfg.InputDataPin)
			if err != nil {
				return c.fault("read input data", err)
			}
			if err := c.gpio.WriteDigital(c.cfg.InputClockPin, false); err != nil {
				return c.fault("input clock low", err)
			}
			c.delay()
			if err := c.gpio.WriteDigital(c.cfg.InputClockPin, true); err != nil {
				return c.fault("input clock high", err)
			}
			c.delay()

			value <<= 1
			if bit {
				value |= 1
			}
		}
		captured[chip] = value
	}

	c.in = captured
	c.refreshes.Add(1)
	return nil
}

func (c *Chain) InputBit(chip, bit int) (bool, error) {
	if err := c.acquire(); err != nil {
		return false, err
	}
	defer c.mu.Unlock()

	if err := checkAddress(chip, bit, c.cfg.NumInputRegisters); err != nil {
		return false, err
	}
	return c.in[chip]&(1<<bit) != 0, nil
}

func (c *Chain) InputByte(chip int) (byte, error) {
	if err := c.acquire(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	if err := checkChip(chip, c.cfg.NumInputRegisters); err != nil {
		return 0, err
	}
	return c.in[chip], nil
}

func (c *Chain) SetOutputBit(chip, bit int, level bool) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	return c.setBit(chip, bit, level)
}

func (c *Chain) setBit(chip, bit int, level bool) error {
	if err := checkAddress(chip, bit, c.cfg.NumOutputRegisters); err != nil {
		return err
	}
	if level {
		c.out[chip] |= 1 << bit
	} else {
		c.out[chip] &^= 1 << bit
	}
	return nil
}

func (c *Chain) OutputBit(chip, bit int) (bool, error) {
	if err := c.acquire(); err != nil {
		return false, err
	}
	defer c.mu.Unlock()

	if err := checkAddress(chip, bit, c.cfg.NumOutputRegisters); err != nil {
		return false, err
	}
	return c.out[chip]&(1<<bit) != 0, nil
}

func (c *Chain) SetOutputByte(chip int, value byte) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := checkChip(chip, c.cfg.NumOutputRegisters); err != nil {
		return err
	}
	c.out[chip] = value
	return nil
}

func (c *Chain) OutputByte(chip int) (byte, error) {
	if err := c.acquire(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	if err := checkChip(chip, c.cfg.NumOutputRegisters); err != nil {
		return 0, err
	}
	return c.out[chip], nil
}

func (c *Chain) FlushOutputs() error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	return c.shiftOut()
}

func (c *Chain) WriteOutputBit(chip, bit int, level bool) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.mu.Unlock()

	prev := c.out
	if err := c.setBit(chip, bit, level); err != nil {
		return err
	}
	if err := c.shiftOut(); err != nil {
		c.out = prev
		return err
	}
	return nil
}

func (c *Chain) Stats() ShiftStats {
	return ShiftStats{
		InputRefreshes: c.refreshes.Load(),
		OutputFlushes:  c.flushes.Load(),
		Errors:         c.errors.Load(),
		LockTimeouts:   c.lockTimeouts.Load(),
	}
}

// shiftOut clocks the staged bytes out, highest chip first, MSB first, and
// latches them. Caller holds the chain lock.
func (c *Chain) shiftOut() error {
	n := c.cfg.NumOutputRegisters
	if n == 0 {
		return nil
	}

	if err := c.gpio.WriteDigital(c.cfg.OutputLatchPin, false); err != nil {
		return c.fault("latch low", err)
	}

	for chip := n - 1; chip >= 0; chip-- {
		for bit := 7; bit >= 0; bit-- {
			if err := c.gpio.WriteDigital(c.cfg.OutputDataPin, c.out[chip]&(1<<bit) != 0); err != nil {
				return c.fault("output data", err)
			}
			if err := c.gpio.WriteDigital(c.cfg.OutputClockPin, true); err != nil {
				return c.fault("output clock high", err)
			}
			c.delay()
			if err := c.gpio.WriteDigital(c.cfg.OutputClockPin, false); err != nil {
				return c.fault("output clock low", err)
			}
		}
	}

	if err := c.gpio.WriteDigital(c.cfg.OutputLatchPin, true); err != nil {
		return c.fault("latch high", err)
	}

	c.flushes.Add(1)
	return nil
}

func (c *Chain) acquire() error {
	if err := c.mu.Lock(); err != nil {
		c.lockTimeouts.Add(1)
		return fmt.Errorf("shift register chain: %w", err)
	}
	return nil
}

func (c *Chain) fault(op string, err error) error {
	c.errors.Add(1)
	if errors.Is(err, types.ErrHardwareFault) {
		return fmt.Errorf("shift register %s: %w", op, err)
	}
	return fmt.Errorf("shift register %s: %w: %w", op, types.ErrHardwareFault, err)
}

func (c *Chain) delay() {
	if c.bitDelay > 0 {
		time.Sleep(c.bitDelay)
	}
}
