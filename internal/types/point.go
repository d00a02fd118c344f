package types

import (
	"encoding/json"
	"fmt"
)

// MaxPoints is the number of points a single IO configuration may declare.
const MaxPoints = 32

// MaxShiftRegisters is the longest supported chain in either direction.
const MaxShiftRegisters = 8

// PointType identifies how a point is wired to the hardware.
type PointType string

const (
	PointGPIOAnalogInput  PointType = "GPIO_AI"
	PointGPIOBinaryInput  PointType = "GPIO_BI"
	PointGPIOBinaryOutput PointType = "GPIO_BO"
	PointShiftBinaryInput PointType = "SHIFT_REG_BI"
	PointShiftBinaryOut   PointType = "SHIFT_REG_BO"
)

func (t PointType) Valid() bool {
	switch t {
	case PointGPIOAnalogInput, PointGPIOBinaryInput, PointGPIOBinaryOutput,
		PointShiftBinaryInput, PointShiftBinaryOut:
		return true
	}
	return false
}

func (t PointType) IsInput() bool {
	return t == PointGPIOAnalogInput || t == PointGPIOBinaryInput || t == PointShiftBinaryInput
}

func (t PointType) IsOutput() bool {
	return t == PointGPIOBinaryOutput || t == PointShiftBinaryOut
}

func (t PointType) IsAnalog() bool {
	return t == PointGPIOAnalogInput
}

func (t PointType) IsBinary() bool {
	return t.Valid() && !t.IsAnalog()
}

func (t PointType) IsShiftRegister() bool {
	return t == PointShiftBinaryInput || t == PointShiftBinaryOut
}

// BinaryOutputKind describes what a binary output drives. Informational only.
type BinaryOutputKind string

const (
	OutputSolenoid BinaryOutputKind = "SOLENOID"
	OutputLighting BinaryOutputKind = "LIGHTING"
	OutputPump     BinaryOutputKind = "PUMP"
	OutputFan      BinaryOutputKind = "FAN"
	OutputHeater   BinaryOutputKind = "HEATER"
	OutputGeneric  BinaryOutputKind = "GENERIC"
)

// FilterType selects the smoothing stage of the signal pipeline.
type FilterType string

const (
	FilterNone FilterType = "NONE"
	FilterSMA  FilterType = "SMA"
)

type LookupEntry struct {
	Input  float32 `json:"input"`
	Output float32 `json:"output"`
}

type SignalConfig struct {
	Enabled            bool          `json:"enabled"`
	Filter             FilterType    `json:"filterType,omitempty"`
	Gain               float32       `json:"gain"`
	Offset             float32       `json:"offset"`
	ScalingFactor      float32       `json:"scalingFactor"`
	SMAWindowSize      int           `json:"smaWindowSize"`
	PrecisionDigits    int           `json:"precisionDigits"`
	Units              string        `json:"units,omitempty"`
	LookupTableEnabled bool          `json:"lookupTableEnabled"`
	LookupTable        []LookupEntry `json:"lookupTable,omitempty"`
}

// DefaultSignalConfig is applied underneath every decoded signalConfig.
// Conditioning stays off unless the document enables it.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		Filter:          FilterNone,
		Gain:            1,
		ScalingFactor:   1,
		SMAWindowSize:   1,
		PrecisionDigits: 2,
	}
}

func (s *SignalConfig) UnmarshalJSON(data []byte) error {
	type plain SignalConfig
	p := plain(DefaultSignalConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SignalConfig(p)
	return nil
}

type AlarmRules struct {
	CheckRateOfChange     bool    `json:"checkRateOfChange"`
	RateOfChangeThreshold float32 `json:"rateOfChangeThreshold"`

	CheckDisconnected     bool    `json:"checkDisconnected"`
	DisconnectedThreshold float32 `json:"disconnectedThreshold"`

	CheckMaxValue     bool    `json:"checkMaxValue"`
	MaxValueThreshold float32 `json:"maxValueThreshold"`

	CheckStuckSignal          bool    `json:"checkStuckSignal"`
	StuckSignalWindowSamples  int     `json:"stuckSignalWindowSamples"`
	StuckSignalDeltaThreshold float32 `json:"stuckSignalDeltaThreshold"`

	PersistenceSamples    int  `json:"alarmPersistenceSamples"`
	SamplesToClear        int  `json:"samplesToClearAlarmCondition"`
	SamplesToRestoreTrust int  `json:"consecutiveGoodSamplesToRestoreTrust"`
	RequiresManualReset   bool `json:"requiresManualReset"`
}

func DefaultAlarmRules() AlarmRules {
	return AlarmRules{
		StuckSignalWindowSamples: 5,
		PersistenceSamples:       1,
		SamplesToClear:           1,
		SamplesToRestoreTrust:    1,
	}
}

func (r *AlarmRules) UnmarshalJSON(data []byte) error {
	type plain AlarmRules
	p := plain(DefaultAlarmRules())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = AlarmRules(p)
	return nil
}

type AlarmConfig struct {
	Enabled bool       `json:"enabled"`
	Rules   AlarmRules `json:"rules"`
}

// PointConfig is immutable once a configuration snapshot is loaded.
type PointConfig struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Type        PointType        `json:"type"`
	Pin         int              `json:"pin"`
	ChipIndex   int              `json:"chipIndex"`
	BitIndex    int              `json:"bitIndex"`
	Inverted    bool             `json:"isInverted"`
	RangeMin    float32          `json:"rangeMin"`
	RangeMax    float32          `json:"rangeMax"`
	Units       string           `json:"units,omitempty"`
	OutputKind  BinaryOutputKind `json:"boType,omitempty"`
	Signal      SignalConfig     `json:"signalConfig"`
	Alarm       AlarmConfig      `json:"alarmConfig"`
}

// Monitored reports whether the alarm engine keeps state for this point.
func (p PointConfig) Monitored() bool {
	return p.Type == PointGPIOAnalogInput && p.Alarm.Enabled
}

type ShiftRegisterConfig struct {
	OutputClockPin     int `json:"outputClockPin"`
	OutputLatchPin     int `json:"outputLatchPin"`
	OutputDataPin      int `json:"outputDataPin"`
	OutputEnablePin    int `json:"outputEnablePin"`
	InputClockPin      int `json:"inputClockPin"`
	InputLoadPin       int `json:"inputLoadPin"`
	InputDataPin       int `json:"inputDataPin"`
	NumOutputRegisters int `json:"numOutputRegisters"`
	NumInputRegisters  int `json:"numInputRegisters"`
}

// IOConfig is one immutable configuration snapshot.
type IOConfig struct {
	ShiftRegisters ShiftRegisterConfig `json:"shiftRegisterConfig"`
	Points         []PointConfig       `json:"ioPoints"`
}

// Point returns the first point with the given id.
func (c *IOConfig) Point(id string) (PointConfig, error) {
	for _, p := range c.Points {
		if p.ID == id {
			return p, nil
		}
	}
	return PointConfig{}, fmt.Errorf("point %q: %w", id, ErrNotFound)
}

// Clone returns a deep copy so that snapshots never share slices.
func (c *IOConfig) Clone() *IOConfig {
	out := &IOConfig{
		ShiftRegisters: c.ShiftRegisters,
		Points:         make([]PointConfig, len(c.Points)),
	}
	copy(out.Points, c.Points)
	for i := range out.Points {
		if lt := c.Points[i].Signal.LookupTable; lt != nil {
			out.Points[i].Signal.LookupTable = append([]LookupEntry(nil), lt...)
		}
	}
	return out
}
