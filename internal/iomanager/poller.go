package iomanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/signal"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

type sample struct {
	pointID string
	value   float32
}

// Start runs Poll on the configured interval until Stop.
func (m *Manager) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return fmt.Errorf("io poller already running: %w", types.ErrInvalidState)
	}
	if err := m.mu.Lock(); err != nil {
		return fmt.Errorf("io poller start: %w", err)
	}
	err := m.readyLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.running = true
	m.stopChan = make(chan struct{})
	m.wg.Add(1)

	go m.pollLoop(m.stopChan)

	m.logger.Info("IO poller started", zap.Duration("interval", m.opts.PollInterval))
	return nil
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}

	close(m.stopChan)
	m.wg.Wait()
	m.running = false

	m.logger.Info("IO poller stopped")
}

func (m *Manager) IsRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// Reload stops polling, swaps in a table built from cfg and restarts
// polling if it was running. The poll loop never observes a partial table.
func (m *Manager) Reload(cfg *types.IOConfig) error {
	wasRunning := m.IsRunning()
	m.Stop()

	err := m.Configure(cfg)

	if wasRunning {
		if startErr := m.Start(); startErr != nil {
			return errors.Join(err, startErr)
		}
	}
	return err
}

func (m *Manager) pollLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.opts.PollInterval/2)
			if err := m.Poll(ctx); err != nil {
				m.logger.Debug("IO poll cycle skipped", zap.Error(err))
			}
			cancel()
		}
	}
}

// Poll runs one update cycle over every input point. Per-point read
// failures are recorded on the point and do not fail the cycle. Samples go
// to the sink and updates to listeners after the lock is released.
func (m *Manager) Poll(ctx context.Context) error {
	if err := m.mu.LockContext(ctx); err != nil {
		m.skippedCycles.Add(1)
		return fmt.Errorf("io poll: %w", err)
	}

	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	now := m.opts.Now()

	var refreshErr error
	if m.shiftInputs {
		if refreshErr = m.shift.RefreshInputs(); refreshErr != nil {
			m.logger.Warn("Shift register input refresh failed", zap.Error(refreshErr))
		}
	}

	var samples []sample
	var updates []Update

	for _, id := range m.order {
		p := m.points[id]
		if !p.cfg.Type.IsInput() {
			continue
		}

		prev := p.state.Reading
		if err := m.readPointLocked(p, refreshErr); err != nil {
			p.state.ErrorState = true
			p.state.ErrorCount++
			m.totalErrors++
			m.logger.Warn("IO point read failed",
				zap.String("point", id),
				zap.String("type", string(p.cfg.Type)),
				zap.Error(err))
		} else {
			p.state.ErrorState = false
			p.state.LastUpdate = now
			p.state.UpdateCount++
			if p.cfg.Monitored() {
				samples = append(samples, sample{pointID: id, value: p.state.ConditionedValue})
			}
		}

		if p.state.Reading != prev {
			updates = append(updates, Update{
				PointID:   id,
				Type:      p.cfg.Type,
				Reading:   p.state.Reading,
				Timestamp: now,
			})
		}
	}

	m.updateCycles++
	m.lastUpdate = now
	sink := m.opts.Sink
	m.mu.Unlock()

	if sink != nil {
		for _, s := range samples {
			if err := sink.RecordSample(s.pointID, s.value); err != nil {
				m.logger.Debug("Sample not recorded",
					zap.String("point", s.pointID),
					zap.Error(err))
			}
		}
	}
	m.publish(updates)

	return nil
}

func (m *Manager) readPointLocked(p *point, refreshErr error) error {
	switch p.cfg.Type {
	case types.PointGPIOAnalogInput:
		code, err := m.gpio.ReadAnalog(p.cfg.Pin)
		if err != nil {
			return hardwareFault("analog read", err)
		}
		raw := m.scale(code, p.cfg.RangeMin, p.cfg.RangeMax)
		p.state.RawValue = raw
		p.state.ConditionedValue = signal.Condition(raw, p.cfg.Signal, &p.filter)

	case types.PointGPIOBinaryInput:
		level, err := m.gpio.ReadDigital(p.cfg.Pin)
		if err != nil {
			return hardwareFault("digital read", err)
		}
		m.setBinaryLocked(p, level)

	case types.PointShiftBinaryInput:
		if refreshErr != nil {
			return hardwareFault("shift register refresh", refreshErr)
		}
		level, err := m.shift.InputBit(p.cfg.ChipIndex, p.cfg.BitIndex)
		if err != nil {
			return hardwareFault("shift register read", err)
		}
		m.setBinaryLocked(p, level)
	}

	return nil
}

func (m *Manager) setBinaryLocked(p *point, level bool) {
	on := level != p.cfg.Inverted
	p.state.DigitalState = on
	p.state.RawValue = boolValue(level)
	p.state.ConditionedValue = boolValue(on)
}

// scale maps an ADC code linearly onto [lo, hi].
func (m *Manager) scale(code uint16, lo, hi float32) float32 {
	return lo + float32(code)/float32(m.opts.ADCMaxCode)*(hi-lo)
}
