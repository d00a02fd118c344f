// Package iomanager owns the runtime state of every configured IO point.
//
// A poll loop refreshes input points from the hardware and runs analog
// values through the signal conditioner; callers query state and drive
// binary outputs through the Manager. All point state lives behind one
// bounded-wait lock and callers only ever receive copies.
package iomanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/lock"
	"github.com/rbattiston/SNRv9-sub001/internal/signal"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = time.Second
	DefaultADCMaxCode   = 4095
)

type Options struct {
	PollInterval time.Duration
	LockTimeout  time.Duration
	ADCMaxCode   uint16
	Sink         SampleSink

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type point struct {
	cfg    types.PointConfig
	state  RuntimeState
	filter signal.FilterState
}

type Manager struct {
	gpio   hardware.GPIO
	shift  hardware.ShiftRegisters
	logger *zap.Logger
	opts   Options
	mu     *lock.Timed

	// guarded by mu
	current      *types.IOConfig
	points       map[string]*point
	order        []string
	shiftInputs  bool
	configured   bool
	closed       bool
	updateCycles uint64
	totalErrors  uint64
	lastUpdate   time.Time

	skippedCycles atomic.Uint64

	listenersMu sync.RWMutex
	listeners   []Listener

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a manager over the given hardware. shift may be nil when no
// configuration uses shift registers.
func New(gpio hardware.GPIO, shift hardware.ShiftRegisters, logger *zap.Logger, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ADCMaxCode == 0 {
		opts.ADCMaxCode = DefaultADCMaxCode
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		gpio:   gpio,
		shift:  shift,
		logger: logger,
		opts:   opts,
		mu:     lock.NewTimed(opts.LockTimeout),
		points: make(map[string]*point),
	}
}

// AddListener registers l for every later point update.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Configure builds a fresh point table from cfg and routes every point to
// the hardware. Binary outputs are always driven OFF.
//
// A config that fails the checks leaves the hardware and the previous
// table untouched. A hardware failure while routing leaves the hardware
// partly reconfigured, so the previous table is routed again with every
// output driven and mirrored OFF; if that fails too the manager drops to
// an empty, unconfigured table.
func (m *Manager) Configure(cfg *types.IOConfig) error {
	if cfg == nil {
		return fmt.Errorf("io manager: nil config: %w", types.ErrInvalidArgument)
	}

	if err := m.mu.Lock(); err != nil {
		return fmt.Errorf("io manager configure: %w", err)
	}

	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("io manager closed: %w", types.ErrNotInitialized)
	}

	if err := m.check(cfg); err != nil {
		m.mu.Unlock()
		return err
	}

	points, order, shiftInputs, err := m.build(cfg)
	if err != nil {
		updates := m.restoreLocked(err)
		m.mu.Unlock()
		m.publish(updates)
		return err
	}

	m.current = cfg.Clone()
	m.points = points
	m.order = order
	m.shiftInputs = shiftInputs
	m.configured = true
	m.mu.Unlock()

	m.logger.Info("IO points configured",
		zap.Int("points", len(order)),
		zap.Int("output_registers", cfg.ShiftRegisters.NumOutputRegisters),
		zap.Int("input_registers", cfg.ShiftRegisters.NumInputRegisters))

	return nil
}

// IsConfigured reports whether a point table is in place.
func (m *Manager) IsConfigured() bool {
	if err := m.mu.LockContext(context.Background()); err != nil {
		return false
	}
	defer m.mu.Unlock()
	return m.configured && !m.closed
}

// check rejects configs the manager cannot route, before any hardware is
// touched.
func (m *Manager) check(cfg *types.IOConfig) error {
	if len(cfg.Points) > types.MaxPoints {
		return fmt.Errorf("%d points, max %d: %w",
			len(cfg.Points), types.MaxPoints, types.ErrInvalidArgument)
	}

	for _, pc := range cfg.Points {
		switch pc.Type {
		case types.PointGPIOAnalogInput, types.PointGPIOBinaryInput, types.PointGPIOBinaryOutput:
		case types.PointShiftBinaryInput, types.PointShiftBinaryOut:
			if m.shift == nil {
				return fmt.Errorf("shift register point %s without a shift register driver: %w",
					pc.ID, types.ErrInvalidArgument)
			}
		default:
			return fmt.Errorf("configure point %s: unknown point type %q: %w",
				pc.ID, pc.Type, types.ErrInvalidArgument)
		}
	}
	return nil
}

// restoreLocked puts the hardware back under the kept table after a failed
// build and returns the output updates to publish.
func (m *Manager) restoreLocked(cause error) []Update {
	if !m.configured || m.current == nil {
		m.dropLocked()
		return nil
	}

	if _, _, _, err := m.build(m.current); err != nil {
		m.logger.Error("Failed to restore previous IO table, manager unconfigured",
			zap.NamedError("cause", cause),
			zap.Error(err))
		m.dropLocked()
		return nil
	}

	now := m.opts.Now()
	var updates []Update
	for _, id := range m.order {
		p := m.points[id]
		if !p.cfg.Type.IsOutput() {
			continue
		}
		off := Reading{RawValue: boolValue(physicalLevel(false, p.cfg.Inverted))}
		if p.state.Reading == off {
			continue
		}
		p.state.Reading = off
		p.state.LastUpdate = now
		p.state.UpdateCount++
		updates = append(updates, Update{PointID: id, Type: p.cfg.Type, Reading: off, Timestamp: now})
	}

	m.logger.Warn("IO configure failed, previous table restored with outputs OFF",
		zap.Int("points", len(m.order)),
		zap.Error(cause))

	return updates
}

func (m *Manager) dropLocked() {
	m.current = nil
	m.points = make(map[string]*point)
	m.order = nil
	m.shiftInputs = false
	m.configured = false
}

func (m *Manager) build(cfg *types.IOConfig) (map[string]*point, []string, bool, error) {
	if m.shift != nil {
		if err := m.shift.Configure(cfg.ShiftRegisters); err != nil {
			return nil, nil, false, fmt.Errorf("configure shift registers: %w", err)
		}
	}

	points := make(map[string]*point, len(cfg.Points))
	order := make([]string, 0, len(cfg.Points))
	shiftInputs := false
	flush := false

	for _, pc := range cfg.Points {
		if _, dup := points[pc.ID]; dup {
			// first match wins
			continue
		}

		var err error
		switch pc.Type {
		case types.PointGPIOAnalogInput:
			err = m.gpio.ConfigureAnalog(pc.Pin)
		case types.PointGPIOBinaryInput:
			err = m.gpio.ConfigureInput(pc.Pin, true)
		case types.PointGPIOBinaryOutput:
			err = m.gpio.ConfigureOutput(pc.Pin, physicalLevel(false, pc.Inverted))
		case types.PointShiftBinaryInput:
			shiftInputs = true
		case types.PointShiftBinaryOut:
			err = m.shift.SetOutputBit(pc.ChipIndex, pc.BitIndex, physicalLevel(false, pc.Inverted))
			flush = true
		}
		if err != nil {
			return nil, nil, false, fmt.Errorf("configure point %s: %w", pc.ID, err)
		}

		points[pc.ID] = &point{cfg: pc}
		order = append(order, pc.ID)
	}

	if flush {
		if err := m.shift.FlushOutputs(); err != nil {
			return nil, nil, false, fmt.Errorf("flush shift register outputs: %w", err)
		}
	}

	return points, order, shiftInputs, nil
}

// Read returns a consistent copy of a point's values.
func (m *Manager) Read(pointID string) (Reading, error) {
	st, err := m.State(pointID)
	if err != nil {
		return Reading{}, err
	}
	return st.Reading, nil
}

// State returns a copy of a point's values and counters.
func (m *Manager) State(pointID string) (RuntimeState, error) {
	if err := m.mu.Lock(); err != nil {
		return RuntimeState{}, fmt.Errorf("read %s: %w", pointID, err)
	}
	defer m.mu.Unlock()

	p, err := m.pointLocked(pointID)
	if err != nil {
		return RuntimeState{}, err
	}
	return p.state, nil
}

// ReadBinary returns the logical state of a binary input or output.
func (m *Manager) ReadBinary(pointID string) (bool, error) {
	if err := m.mu.Lock(); err != nil {
		return false, fmt.Errorf("read %s: %w", pointID, err)
	}
	defer m.mu.Unlock()

	p, err := m.pointLocked(pointID)
	if err != nil {
		return false, err
	}
	if !p.cfg.Type.IsBinary() {
		return false, fmt.Errorf("point %s is %s, not binary: %w", pointID, p.cfg.Type, types.ErrInvalidArgument)
	}
	return p.state.DigitalState, nil
}

// WriteBinary drives a binary output to the logical state on. The runtime
// mirror changes only after the hardware accepted the write.
func (m *Manager) WriteBinary(pointID string, on bool) error {
	if err := m.mu.Lock(); err != nil {
		return fmt.Errorf("write %s: %w", pointID, err)
	}

	p, err := m.pointLocked(pointID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !p.cfg.Type.IsOutput() {
		m.mu.Unlock()
		return fmt.Errorf("point %s is %s, not a binary output: %w", pointID, p.cfg.Type, types.ErrInvalidArgument)
	}

	level := physicalLevel(on, p.cfg.Inverted)
	if p.cfg.Type == types.PointGPIOBinaryOutput {
		err = m.gpio.WriteDigital(p.cfg.Pin, level)
	} else {
		err = m.shift.WriteOutputBit(p.cfg.ChipIndex, p.cfg.BitIndex, level)
	}
	if err != nil {
		m.totalErrors++
		m.mu.Unlock()
		m.logger.Error("Binary output write failed",
			zap.String("point", pointID),
			zap.Bool("state", on),
			zap.Error(err))
		return hardwareFault(fmt.Sprintf("write %s", pointID), err)
	}

	now := m.opts.Now()
	p.state.DigitalState = on
	p.state.RawValue = boolValue(level)
	p.state.ConditionedValue = boolValue(on)
	p.state.ErrorState = false
	p.state.LastUpdate = now
	p.state.UpdateCount++
	u := Update{PointID: pointID, Type: p.cfg.Type, Reading: p.state.Reading, Timestamp: now}
	m.mu.Unlock()

	m.logger.Info("Binary output set",
		zap.String("point", pointID),
		zap.Bool("state", on))

	m.publish([]Update{u})
	return nil
}

// PointIDs lists configured points in configuration order.
func (m *Manager) PointIDs() ([]string, error) {
	if err := m.mu.Lock(); err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer m.mu.Unlock()

	if err := m.readyLocked(); err != nil {
		return nil, err
	}
	return append([]string(nil), m.order...), nil
}

func (m *Manager) PointConfig(pointID string) (types.PointConfig, error) {
	if err := m.mu.Lock(); err != nil {
		return types.PointConfig{}, fmt.Errorf("point config %s: %w", pointID, err)
	}
	defer m.mu.Unlock()

	p, err := m.pointLocked(pointID)
	if err != nil {
		return types.PointConfig{}, err
	}
	return p.configCopy(), nil
}

// Point returns a point's configuration and state from the same table.
func (m *Manager) Point(pointID string) (PointSnapshot, error) {
	if err := m.mu.Lock(); err != nil {
		return PointSnapshot{}, fmt.Errorf("point %s: %w", pointID, err)
	}
	defer m.mu.Unlock()

	p, err := m.pointLocked(pointID)
	if err != nil {
		return PointSnapshot{}, err
	}
	return PointSnapshot{Config: p.configCopy(), State: p.state}, nil
}

// Snapshot returns every point in configuration order, all taken from the
// same table.
func (m *Manager) Snapshot() ([]PointSnapshot, error) {
	if err := m.mu.Lock(); err != nil {
		return nil, fmt.Errorf("io snapshot: %w", err)
	}
	defer m.mu.Unlock()

	if err := m.readyLocked(); err != nil {
		return nil, err
	}

	out := make([]PointSnapshot, 0, len(m.order))
	for _, id := range m.order {
		p := m.points[id]
		out = append(out, PointSnapshot{Config: p.configCopy(), State: p.state})
	}
	return out, nil
}

func (m *Manager) Statistics() (Statistics, error) {
	if err := m.mu.Lock(); err != nil {
		return Statistics{}, fmt.Errorf("io statistics: %w", err)
	}
	stats := Statistics{
		UpdateCycles:  m.updateCycles,
		TotalErrors:   m.totalErrors,
		SkippedCycles: m.skippedCycles.Load(),
		LastUpdate:    m.lastUpdate,
		PointCount:    len(m.order),
	}
	m.mu.Unlock()

	stats.Polling = m.IsRunning()
	return stats, nil
}

// Close stops polling. Every later call fails with ErrNotInitialized.
func (m *Manager) Close() error {
	m.Stop()

	if err := m.mu.LockContext(context.Background()); err != nil {
		return fmt.Errorf("io manager close: %w", err)
	}
	defer m.mu.Unlock()

	m.closed = true
	m.dropLocked()
	return nil
}

func (m *Manager) readyLocked() error {
	if m.closed || !m.configured {
		return fmt.Errorf("io manager: %w", types.ErrNotInitialized)
	}
	return nil
}

func (m *Manager) pointLocked(pointID string) (*point, error) {
	if err := m.readyLocked(); err != nil {
		return nil, err
	}
	p, ok := m.points[pointID]
	if !ok {
		return nil, fmt.Errorf("point %q: %w", pointID, types.ErrNotFound)
	}
	return p, nil
}

func (m *Manager) publish(updates []Update) {
	if len(updates) == 0 {
		return
	}

	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()

	for _, u := range updates {
		for _, l := range m.listeners {
			l.PointUpdated(u)
		}
	}
}

func (p *point) configCopy() types.PointConfig {
	cfg := p.cfg
	cfg.Signal.LookupTable = append([]types.LookupEntry(nil), cfg.Signal.LookupTable...)
	return cfg
}

func physicalLevel(on, inverted bool) bool {
	return on != inverted
}

func boolValue(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func hardwareFault(op string, err error) error {
	if errors.Is(err, types.ErrHardwareFault) || errors.Is(err, types.ErrTimeout) ||
		errors.Is(err, types.ErrInvalidArgument) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrHardwareFault, err)
}
