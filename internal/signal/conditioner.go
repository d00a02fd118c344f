// Package signal turns raw analog samples into engineering values.
//
// The pipeline order is fixed: offset, gain, scaling factor, lookup table,
// rounding, then the moving-average filter. Everything except the filter is
// a pure function of the input and the configuration; the filter keeps its
// state in a caller-owned FilterState.
package signal

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

const (
	// MaxSMAWindow is the capacity of every FilterState ring.
	MaxSMAWindow = 16

	MaxPrecisionDigits = 6

	MinLookupEntries = 2
	MaxLookupEntries = 16
)

var pow10 = [MaxPrecisionDigits + 1]float32{1, 10, 100, 1e3, 1e4, 1e5, 1e6}

// Condition runs raw through the pipeline described by cfg.
// fs may be nil when the config does not use the SMA filter.
func Condition(raw float32, cfg types.SignalConfig, fs *FilterState) float32 {
	if !cfg.Enabled {
		return raw
	}

	v := raw + cfg.Offset
	v *= cfg.Gain
	v *= cfg.ScalingFactor

	if cfg.LookupTableEnabled && len(cfg.LookupTable) >= MinLookupEntries {
		v = Lookup(v, cfg.LookupTable)
	}

	v = RoundPrecision(v, cfg.PrecisionDigits)

	if cfg.Filter == types.FilterSMA && cfg.SMAWindowSize > 1 && fs != nil {
		v = fs.Push(v, cfg.SMAWindowSize)
	}

	return v
}

// Lookup interpolates x over a strictly increasing table, clamping at both
// ends. Tables shorter than two entries return x unchanged.
func Lookup(x float32, table []types.LookupEntry) float32 {
	n := len(table)
	if n < MinLookupEntries {
		return x
	}
	if x <= table[0].Input {
		return table[0].Output
	}
	if x >= table[n-1].Input {
		return table[n-1].Output
	}

	for i := 0; i < n-1; i++ {
		lo, hi := table[i], table[i+1]
		if x >= lo.Input && x <= hi.Input {
			if hi.Input == lo.Input {
				return lo.Output
			}
			return lo.Output + (hi.Output-lo.Output)*(x-lo.Input)/(hi.Input-lo.Input)
		}
	}

	return table[n-1].Output
}

// RoundPrecision rounds v to digits decimal places, half away from zero.
// digits is clamped to [0, MaxPrecisionDigits].
func RoundPrecision(v float32, digits int) float32 {
	if digits < 0 {
		digits = 0
	}
	if digits > MaxPrecisionDigits {
		digits = MaxPrecisionDigits
	}
	m := pow10[digits]
	return math32.Round(v*m) / m
}

// ValidateConfig checks the ranges that Condition relies on. Lookup table
// ordering is checked here once, never on the sample path.
func ValidateConfig(cfg types.SignalConfig) error {
	if cfg.Filter != "" && cfg.Filter != types.FilterNone && cfg.Filter != types.FilterSMA {
		return fmt.Errorf("unknown filter type %q: %w", cfg.Filter, types.ErrInvalidArgument)
	}
	if cfg.SMAWindowSize < 1 || cfg.SMAWindowSize > MaxSMAWindow {
		return fmt.Errorf("sma window %d outside [1,%d]: %w",
			cfg.SMAWindowSize, MaxSMAWindow, types.ErrInvalidArgument)
	}
	if cfg.PrecisionDigits < 0 || cfg.PrecisionDigits > MaxPrecisionDigits {
		return fmt.Errorf("precision %d outside [0,%d]: %w",
			cfg.PrecisionDigits, MaxPrecisionDigits, types.ErrInvalidArgument)
	}

	if !cfg.LookupTableEnabled {
		return nil
	}

	n := len(cfg.LookupTable)
	if n < MinLookupEntries || n > MaxLookupEntries {
		return fmt.Errorf("lookup table has %d entries, want %d-%d: %w",
			n, MinLookupEntries, MaxLookupEntries, types.ErrInvalidArgument)
	}
	for i := 1; i < n; i++ {
		if cfg.LookupTable[i].Input <= cfg.LookupTable[i-1].Input {
			return fmt.Errorf("lookup table input not strictly increasing at entry %d: %w",
				i, types.ErrInvalidArgument)
		}
	}

	return nil
}

// DefaultConfig is a pass-through pipeline with conditioning enabled.
func DefaultConfig() types.SignalConfig {
	cfg := types.DefaultSignalConfig()
	cfg.Enabled = true
	return cfg
}
