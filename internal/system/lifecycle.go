package system

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/rbattiston/SNRv9-sub001/internal/api/health"
	"github.com/rbattiston/SNRv9-sub001/internal/api/rest"
	"github.com/rbattiston/SNRv9-sub001/internal/api/websocket"
	"github.com/rbattiston/SNRv9-sub001/internal/config"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/interfaces"
	"github.com/rbattiston/SNRv9-sub001/internal/ioconfig"
	"github.com/rbattiston/SNRv9-sub001/internal/iomanager"
	"github.com/rbattiston/SNRv9-sub001/internal/notify"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

// Options replace parts of the runtime, mainly for tests.
type Options struct {
	// Hardware overrides the backend selected in the config.
	GPIO  hardware.GPIO
	Shift hardware.ShiftRegisters

	// Publisher overrides the MQTT publisher built from the config.
	Publisher notify.Publisher

	// NoListeners skips binding the REST and gRPC ports.
	NoListeners bool
}

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger
	opts   Options

	hw          *hardwareSet
	store       *ioconfig.Store
	ioManager   *iomanager.Manager
	alarmEngine *alarm.Engine
	wsHub       *websocket.Hub
	publisher   notify.Publisher
	forwarder   *notify.Forwarder

	restServer   *rest.Server
	healthServer *health.Server

	started       atomic.Bool
	stateMu       sync.RWMutex
	currentState  SystemState
	previousState SystemState
	lastError     string

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	reloadMu     sync.Mutex
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, opts Options) (*LifecycleManager, error) {
	hw := &hardwareSet{gpio: opts.GPIO, shift: opts.Shift}
	if opts.GPIO == nil {
		var err error
		if hw, err = openHardware(cfg, logger); err != nil {
			return nil, err
		}
	}

	store, err := ioconfig.NewStore(logger)
	if err != nil {
		hw.Close()
		return nil, err
	}

	alarmEngine := alarm.New(logger.Named("alarm"), alarm.Options{
		CheckInterval: cfg.Alarms.CheckInterval,
		LockTimeout:   cfg.IO.LockTimeout,
	})

	ioManager := iomanager.New(hw.gpio, hw.shift, logger.Named("io"), iomanager.Options{
		PollInterval: cfg.IO.PollInterval,
		LockTimeout:  cfg.IO.LockTimeout,
		ADCMaxCode:   cfg.IO.ADCMaxCode,
		Sink:         alarmEngine,
	})

	wsHub := websocket.NewHub(logger.Named("ws"))
	ioManager.AddListener(wsHub)
	alarmEngine.AddNotifier(wsHub)

	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		opts:         opts,
		hw:           hw,
		store:        store,
		ioManager:    ioManager,
		alarmEngine:  alarmEngine,
		wsHub:        wsHub,
		publisher:    opts.Publisher,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	wsHub.SetStatusProvider(lm)

	lm.healthServer = health.New(logger.Named("grpc"))
	lm.restServer = rest.NewServer(cfg, lm, logger.Named("rest"), wsHub)

	return lm, nil
}

// Start loads the IO configuration, configures the IO manager and the alarm
// engine, starts both loops and brings up the API servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting irrigation IO controller")
	lm.broadcastStatus()

	go lm.wsHub.Run()

	lm.connectPublisher()

	cfg, err := lm.store.Load(lm.config.IO.ConfigPath)
	if err != nil {
		lm.setError(err)
		return fmt.Errorf("load io config: %w", err)
	}

	if err := lm.ioManager.Configure(cfg); err != nil {
		lm.setError(err)
		return fmt.Errorf("configure io manager: %w", err)
	}
	if err := lm.alarmEngine.Configure(cfg); err != nil {
		lm.setError(err)
		return fmt.Errorf("configure alarm engine: %w", err)
	}

	if err := lm.ioManager.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("start io poller: %w", err)
	}
	if err := lm.alarmEngine.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("start alarm monitor: %w", err)
	}
	lm.healthServer.SetServing(true)

	if !lm.opts.NoListeners {
		if err := lm.healthServer.Start(lm.config.Server.GRPCPort); err != nil {
			lm.setError(err)
			return err
		}
		if err := lm.restServer.Start(); err != nil {
			lm.setError(err)
			return err
		}
	}

	lm.started.Store(true)
	if err := lm.transition(StateRunning); err != nil {
		return err
	}

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("points", len(cfg.Points)))

	return nil
}

// connectPublisher sets up MQTT when enabled. A broker that cannot be
// reached is logged and skipped.
func (lm *LifecycleManager) connectPublisher() {
	if lm.publisher == nil && lm.config.MQTT.Enabled {
		pub, err := notify.NewRealPublisher(lm.config.MQTT.Broker, lm.config.MQTT.ClientID, lm.config.MQTT.TopicPrefix)
		if err != nil {
			lm.logger.Warn("MQTT unavailable, alarms will not be published",
				zap.String("broker", lm.config.MQTT.Broker),
				zap.Error(err))
			return
		}
		lm.publisher = pub
	}
	if lm.publisher == nil {
		return
	}

	lm.forwarder = notify.NewForwarder(lm.publisher, notify.DefaultQueueSize, lm.logger.Named("mqtt"))
	lm.alarmEngine.AddNotifier(lm.forwarder)
}

// Reload re-reads the IO configuration file and moves the IO manager and
// the alarm engine onto it. The new snapshot is committed to the store only
// after both accepted it; otherwise both keep running on the previous
// configuration. A reload from ERROR brings the loops back up.
func (lm *LifecycleManager) Reload() error {
	lm.reloadMu.Lock()
	defer lm.reloadMu.Unlock()

	if !lm.started.Load() {
		return fmt.Errorf("cannot reload before start: %w", types.ErrInvalidState)
	}
	if err := lm.transition(StateReloading); err != nil {
		return fmt.Errorf("cannot reload: %w", err)
	}

	cfg, err := lm.store.Candidate()
	if err != nil {
		lm.logger.Warn("IO configuration reload rejected", zap.Error(err))
		return lm.endReload(err)
	}

	if err := lm.apply(cfg); err != nil {
		lm.logger.Warn("IO configuration reload failed, previous configuration kept", zap.Error(err))
		return lm.endReload(err)
	}

	if err := lm.store.Apply(cfg); err != nil {
		return lm.endReload(fmt.Errorf("commit io config: %w", err))
	}

	if err := lm.transition(StateRunning); err != nil {
		return err
	}

	lm.logger.Info("IO configuration reloaded", zap.Int("points", len(cfg.Points)))
	return nil
}

// apply moves the IO manager to cfg, then the alarm engine. If the alarm
// engine refuses, the IO manager is moved back to the current snapshot.
func (lm *LifecycleManager) apply(cfg *types.IOConfig) error {
	if err := lm.ioManager.Reload(cfg); err != nil {
		lm.ensureRunning()
		return fmt.Errorf("reload io manager: %w", err)
	}

	if err := lm.alarmEngine.Reload(cfg); err != nil {
		err = fmt.Errorf("reload alarm engine: %w", err)
		prev, serr := lm.store.Snapshot()
		if serr != nil {
			return errors.Join(err, serr)
		}
		if rerr := lm.ioManager.Reload(prev); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore io manager: %w", rerr))
		}
		lm.ensureRunning()
		return err
	}

	lm.ensureRunning()
	return nil
}

// ensureRunning restarts whichever loop is configured but stopped.
func (lm *LifecycleManager) ensureRunning() {
	if lm.ioManager.IsConfigured() && !lm.ioManager.IsRunning() {
		if err := lm.ioManager.Start(); err != nil {
			lm.logger.Error("Failed to restart IO poller", zap.Error(err))
		}
	}
	if !lm.alarmEngine.IsRunning() {
		if err := lm.alarmEngine.Start(); err != nil && !errors.Is(err, types.ErrNotInitialized) {
			lm.logger.Error("Failed to restart alarm monitor", zap.Error(err))
		}
	}
	lm.healthServer.SetServing(lm.ioManager.IsRunning())
}

// endReload leaves RELOADING after a failed reload: back to RUNNING when
// both loops still run on a complete table, ERROR otherwise.
func (lm *LifecycleManager) endReload(cause error) error {
	if !lm.ioManager.IsRunning() || !lm.alarmEngine.IsRunning() {
		lm.setError(cause)
		return cause
	}
	if err := lm.transition(StateRunning); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.reloadMu.Lock()
		defer lm.reloadMu.Unlock()

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		if lm.forwarder != nil {
			lm.forwarder.Close()
		}
		if lm.publisher != nil {
			if err := lm.publisher.Close(); err != nil {
				lm.logger.Warn("MQTT close failed", zap.Error(err))
			}
		}
		lm.wsHub.Stop()

		if err := lm.hw.Close(); err != nil {
			lm.logger.Warn("Hardware close failed", zap.Error(err))
		}

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	lm.healthServer.SetServing(false)

	// 1. IO poller and alarm monitor
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.alarmEngine.Stop()
		if err := lm.ioManager.Close(); err != nil {
			errChan <- fmt.Errorf("io manager close failed: %w", err)
		}
	}()

	if !lm.opts.NoListeners {
		// 2. REST API Server graceful shutdown
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()

		// 3. gRPC Server graceful stop
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.healthServer.Stop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded: %w", types.ErrTimeout)
	}

	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) transition(to SystemState) error {
	lm.stateMu.Lock()
	from := lm.currentState
	if err := ValidateTransition(from, to); err != nil {
		lm.stateMu.Unlock()
		return err
	}
	lm.previousState = from
	lm.currentState = to
	if to != StateError {
		lm.lastError = ""
	}
	lm.stateMu.Unlock()

	lm.broadcastStatus()
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.previousState = lm.currentState
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.previousState = lm.currentState
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// StatusName reports the state to newly connected websocket clients.
func (lm *LifecycleManager) StatusName() string {
	return lm.State().String()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	state := lm.State()
	status := interfaces.SystemStatus{
		State:       state.String(),
		Operational: state.Operational(),
		ConfigPath:  lm.store.Path(),
		Timestamp:   time.Now().Unix(),
	}

	if stats, err := lm.ioManager.Statistics(); err == nil {
		status.PointCount = stats.PointCount
		status.Polling = stats.Polling
	}
	if stats, err := lm.alarmEngine.Statistics(); err == nil {
		status.AlarmMonitoring = stats.Monitoring
		status.ActiveAlarms = stats.ActiveAlarms
	}

	return status
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:     lm.currentState,
		Previous:  lm.previousState,
		Timestamp: time.Now().Unix(),
		Error:     lm.lastError,
	}
}

// broadcastStatus fans the state out to subscribers, websocket clients and
// the retained MQTT status topic.
func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.wsHub.Broadcast(websocket.NewSystemStatusMessage(status.State.String(), status.Previous.String()))

	if lm.publisher != nil {
		err := lm.publisher.PublishStatus(notify.StatusEvent{
			Timestamp: time.Unix(status.Timestamp, 0),
			State:     status.State.String(),
			Reason:    status.Error,
		})
		if err != nil {
			lm.logger.Debug("MQTT status publish failed", zap.Error(err))
		}
	}

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) ConfigStore() *ioconfig.Store {
	return lm.store
}

func (lm *LifecycleManager) IOManager() *iomanager.Manager {
	return lm.ioManager
}

func (lm *LifecycleManager) AlarmEngine() *alarm.Engine {
	return lm.alarmEngine
}

func (lm *LifecycleManager) ShiftRegisters() hardware.ShiftRegisters {
	return lm.hw.shift
}

// RESTHandler exposes the HTTP router without a listener.
func (lm *LifecycleManager) RESTHandler() http.Handler {
	return lm.restServer.Handler()
}
