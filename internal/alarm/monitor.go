package alarm

import (
	"errors"
	"fmt"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

// Start runs CheckAll on the configured interval until Stop.
func (e *Engine) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return fmt.Errorf("alarm monitor already running: %w", types.ErrInvalidState)
	}
	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("alarm monitor start: %w", err)
	}
	configured := e.configured
	e.mu.Unlock()
	if !configured {
		return fmt.Errorf("alarm monitor: %w", types.ErrNotInitialized)
	}

	e.running = true
	e.stopChan = make(chan struct{})
	e.wg.Add(1)

	go e.monitorLoop(e.stopChan)

	e.logger.Info("Alarm monitor started", zap.Duration("interval", e.interval))
	return nil
}

// Stop halts the monitor loop and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.running {
		return
	}

	close(e.stopChan)
	e.wg.Wait()
	e.running = false

	e.logger.Info("Alarm monitor stopped")
}

func (e *Engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// Reload stops the monitor, rebuilds all state from cfg and restarts the
// monitor if it was running. On error the previous state is kept.
func (e *Engine) Reload(cfg *types.IOConfig) error {
	wasRunning := e.IsRunning()
	e.Stop()

	err := e.Configure(cfg)

	if wasRunning {
		if startErr := e.Start(); startErr != nil {
			return errors.Join(err, startErr)
		}
	}
	return err
}

func (e *Engine) monitorLoop(stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.CheckAll(); err != nil {
				e.skippedCycles.Add(1)
				e.logger.Debug("Alarm check cycle skipped", zap.Error(err))
			}
		}
	}
}
