package system

import (
	"fmt"
	"io"

	"github.com/rbattiston/SNRv9-sub001/internal/config"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware/cdev"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware/serialadc"
	"go.uber.org/zap"
)

type hardwareSet struct {
	gpio    hardware.GPIO
	shift   hardware.ShiftRegisters
	closers []io.Closer
}

func (h *hardwareSet) Close() error {
	var first error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openHardware builds the pin and shift-register backends named by cfg.
// The fake backend keeps everything in memory.
func openHardware(cfg *config.Config, logger *zap.Logger) (*hardwareSet, error) {
	hw := &hardwareSet{}

	var digital hardware.GPIO
	switch cfg.Hardware.Backend {
	case config.BackendFake:
		digital = hardware.NewFake()
		hw.shift = hardware.NewFakeShiftRegisters()

	case config.BackendGPIOCdev:
		chip, err := cdev.Open(cfg.Hardware.Chip)
		if err != nil {
			return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Hardware.Chip, err)
		}
		hw.closers = append(hw.closers, chip)
		digital = chip
		hw.shift = hardware.NewChain(chip, cfg.Hardware.BitDelay, cfg.IO.LockTimeout, logger)

	default:
		return nil, fmt.Errorf("unknown hardware backend %q", cfg.Hardware.Backend)
	}

	var analog hardware.AnalogReader
	if port := cfg.Hardware.ADC.Port; port != "" {
		bridge, err := serialadc.Open(port, cfg.Hardware.ADC.Baud, cfg.Hardware.ADC.Timeout, logger)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("open serial adc: %w", err)
		}
		hw.closers = append(hw.closers, bridge)
		analog = bridge
	}

	hw.gpio = hardware.NewBoard(digital, analog)

	logger.Info("Hardware backend ready",
		zap.String("backend", cfg.Hardware.Backend),
		zap.Bool("serial_adc", analog != nil))

	return hw, nil
}
