package ioconfig

import (
	"fmt"

	"github.com/rbattiston/SNRv9-sub001/internal/signal"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

const maxHistoryWindow = 20

// Validate applies the checks the schema cannot express: unique ids, unique
// hardware addresses, chain bounds and the signal and alarm parameters.
func Validate(cfg *types.IOConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config: %w", types.ErrInvalidArgument)
	}
	if len(cfg.Points) > types.MaxPoints {
		return fmt.Errorf("%d points, max %d: %w", len(cfg.Points), types.MaxPoints, types.ErrInvalidArgument)
	}

	sr := cfg.ShiftRegisters
	if sr.NumOutputRegisters < 0 || sr.NumOutputRegisters > types.MaxShiftRegisters ||
		sr.NumInputRegisters < 0 || sr.NumInputRegisters > types.MaxShiftRegisters {
		return fmt.Errorf("shift register chain length outside 0-%d: %w",
			types.MaxShiftRegisters, types.ErrInvalidArgument)
	}

	ids := make(map[string]bool, len(cfg.Points))
	pins := make(map[int]string)
	shiftIn := make(map[[2]int]string)
	shiftOut := make(map[[2]int]string)

	for _, p := range cfg.Points {
		if p.ID == "" {
			return fmt.Errorf("point with empty id: %w", types.ErrInvalidArgument)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate point id %q: %w", p.ID, types.ErrInvalidArgument)
		}
		ids[p.ID] = true

		if !p.Type.Valid() {
			return fmt.Errorf("point %q: unknown type %q: %w", p.ID, p.Type, types.ErrInvalidArgument)
		}

		switch p.Type {
		case types.PointShiftBinaryInput:
			if err := checkShiftAddress(p, sr.NumInputRegisters, shiftIn); err != nil {
				return err
			}
		case types.PointShiftBinaryOut:
			if err := checkShiftAddress(p, sr.NumOutputRegisters, shiftOut); err != nil {
				return err
			}
		default:
			if p.Pin < 0 {
				return fmt.Errorf("point %q: negative pin: %w", p.ID, types.ErrInvalidArgument)
			}
			if other, ok := pins[p.Pin]; ok {
				return fmt.Errorf("point %q: pin %d already used by %q: %w",
					p.ID, p.Pin, other, types.ErrInvalidArgument)
			}
			pins[p.Pin] = p.ID
		}

		if p.Type.IsAnalog() {
			if p.RangeMax <= p.RangeMin {
				return fmt.Errorf("point %q: rangeMax must exceed rangeMin: %w", p.ID, types.ErrInvalidArgument)
			}
			if p.Signal.Enabled {
				if err := signal.ValidateConfig(p.Signal); err != nil {
					return fmt.Errorf("point %q: %w", p.ID, err)
				}
			}
			if p.Alarm.Enabled {
				if err := validateRules(p.Alarm.Rules); err != nil {
					return fmt.Errorf("point %q: %w", p.ID, err)
				}
			}
		}
	}

	return nil
}

func checkShiftAddress(p types.PointConfig, chips int, seen map[[2]int]string) error {
	if p.ChipIndex < 0 || p.ChipIndex >= chips {
		return fmt.Errorf("point %q: chip %d outside chain of %d: %w",
			p.ID, p.ChipIndex, chips, types.ErrInvalidArgument)
	}
	if p.BitIndex < 0 || p.BitIndex > 7 {
		return fmt.Errorf("point %q: bit %d outside 0-7: %w", p.ID, p.BitIndex, types.ErrInvalidArgument)
	}
	addr := [2]int{p.ChipIndex, p.BitIndex}
	if other, ok := seen[addr]; ok {
		return fmt.Errorf("point %q: chip %d bit %d already used by %q: %w",
			p.ID, p.ChipIndex, p.BitIndex, other, types.ErrInvalidArgument)
	}
	seen[addr] = p.ID
	return nil
}

func validateRules(r types.AlarmRules) error {
	if r.PersistenceSamples < 1 || r.SamplesToClear < 1 {
		return fmt.Errorf("persistence and clear sample counts must be at least 1: %w", types.ErrInvalidArgument)
	}
	if r.CheckStuckSignal && (r.StuckSignalWindowSamples < 2 || r.StuckSignalWindowSamples > maxHistoryWindow) {
		return fmt.Errorf("stuck signal window %d outside 2-%d: %w",
			r.StuckSignalWindowSamples, maxHistoryWindow, types.ErrInvalidArgument)
	}
	if r.RateOfChangeThreshold < 0 || r.StuckSignalDeltaThreshold < 0 {
		return fmt.Errorf("negative threshold: %w", types.ErrInvalidArgument)
	}
	return nil
}
