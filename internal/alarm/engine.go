// Package alarm evaluates threshold rules over the recent conditioned
// samples of each monitored point.
//
// Every (point, type) pair runs a small state machine: a triggering
// evaluation increments the persistence counter and activates the alarm
// once it reaches the configured persistence; a non-triggering evaluation
// increments the clear counter and, once that reaches the configured clear
// count, deactivates the alarm and zeroes the persistence counter. Isolated
// non-triggering evaluations do not reset persistence.
package alarm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/rbattiston/SNRv9-sub001/internal/lock"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.uber.org/zap"
)

// DefaultCheckInterval is the cadence of the monitor loop.
const DefaultCheckInterval = 5 * time.Second

type Options struct {
	CheckInterval time.Duration
	LockTimeout   time.Duration
	Notifiers     []Notifier

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type ruleState struct {
	active          bool
	activationCount uint32
	activatedAt     time.Time
	persistence     int
	clear           int
	acknowledged    bool
	clearPending    bool
}

type pointState struct {
	id            string
	rules         types.AlarmRules
	hist          history
	alarms        [numTypes]ruleState
	goodSamples   int
	trustRestored bool
}

type Engine struct {
	logger   *zap.Logger
	mu       *lock.Timed
	interval time.Duration
	now      func() time.Time

	notifyMu  sync.RWMutex
	notifiers []Notifier

	// guarded by mu
	points      map[string]*pointState
	order       []string
	configured  bool
	totalAlarms uint64
	checkCycles uint64
	lastCheck   time.Time

	skippedCycles atomic.Uint64

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(logger *zap.Logger, opts Options) *Engine {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		logger:    logger,
		mu:        lock.NewTimed(opts.LockTimeout),
		interval:  opts.CheckInterval,
		now:       opts.Now,
		notifiers: append([]Notifier(nil), opts.Notifiers...),
		points:    make(map[string]*pointState),
	}
}

// AddNotifier registers n for every later transition.
func (e *Engine) AddNotifier(n Notifier) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	e.notifiers = append(e.notifiers, n)
}

// Configure replaces all alarm state with fresh state for every analog
// input point that has alarms enabled.
func (e *Engine) Configure(cfg *types.IOConfig) error {
	if cfg == nil {
		return fmt.Errorf("alarm engine: nil config: %w", types.ErrInvalidArgument)
	}

	points := make(map[string]*pointState)
	order := make([]string, 0, len(cfg.Points))
	for _, p := range cfg.Points {
		if !p.Monitored() {
			continue
		}
		if _, dup := points[p.ID]; dup {
			continue
		}
		points[p.ID] = &pointState{
			id:            p.ID,
			rules:         p.Alarm.Rules,
			trustRestored: true,
		}
		order = append(order, p.ID)
	}

	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("alarm engine configure: %w", err)
	}
	e.points = points
	e.order = order
	e.configured = true
	e.mu.Unlock()

	e.logger.Info("Alarm engine configured", zap.Int("monitored_points", len(order)))
	return nil
}

// RecordSample appends a conditioned value to the point's history.
func (e *Engine) RecordSample(pointID string, value float32) error {
	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("record sample %s: %w", pointID, err)
	}
	defer e.mu.Unlock()

	ps, err := e.pointLocked(pointID)
	if err != nil {
		return err
	}
	ps.hist.push(value)
	return nil
}

// Evaluate runs every enabled rule of one point once.
func (e *Engine) Evaluate(pointID string) error {
	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("evaluate %s: %w", pointID, err)
	}

	ps, err := e.pointLocked(pointID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	events := e.evaluateLocked(ps, e.now())
	e.mu.Unlock()

	e.notify(events)
	return nil
}

// CheckAll evaluates every monitored point and counts one check cycle.
func (e *Engine) CheckAll() error {
	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("alarm check cycle: %w", err)
	}

	now := e.now()
	var events []Event
	for _, id := range e.order {
		events = append(events, e.evaluateLocked(e.points[id], now)...)
	}
	e.checkCycles++
	e.lastCheck = now
	e.mu.Unlock()

	e.notify(events)
	return nil
}

func (e *Engine) Status(pointID string, t Type) (bool, error) {
	if t < 0 || t >= numTypes {
		return false, fmt.Errorf("alarm type %d: %w", t, types.ErrInvalidArgument)
	}
	if err := e.mu.Lock(); err != nil {
		return false, fmt.Errorf("alarm status %s: %w", pointID, err)
	}
	defer e.mu.Unlock()

	ps, err := e.pointLocked(pointID)
	if err != nil {
		return false, err
	}
	return ps.alarms[t].active, nil
}

// Alarms returns a copy of all alarm state of one point.
func (e *Engine) Alarms(pointID string) (PointAlarms, error) {
	if err := e.mu.Lock(); err != nil {
		return PointAlarms{}, fmt.Errorf("alarms %s: %w", pointID, err)
	}
	defer e.mu.Unlock()

	ps, err := e.pointLocked(pointID)
	if err != nil {
		return PointAlarms{}, err
	}
	return ps.snapshot(), nil
}

// AllAlarms returns every monitored point in configuration order.
func (e *Engine) AllAlarms() ([]PointAlarms, error) {
	if err := e.mu.Lock(); err != nil {
		return nil, fmt.Errorf("all alarms: %w", err)
	}
	defer e.mu.Unlock()

	if !e.configured {
		return nil, fmt.Errorf("alarm engine: %w", types.ErrNotInitialized)
	}

	out := make([]PointAlarms, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.points[id].snapshot())
	}
	return out, nil
}

// Acknowledge marks an active alarm as seen by an operator. An alarm held
// by requiresManualReset whose condition has cleared deactivates here.
func (e *Engine) Acknowledge(pointID string, t Type) error {
	if t < 0 || t >= numTypes {
		return fmt.Errorf("alarm type %d: %w", t, types.ErrInvalidArgument)
	}
	if err := e.mu.Lock(); err != nil {
		return fmt.Errorf("acknowledge %s: %w", pointID, err)
	}

	ps, err := e.pointLocked(pointID)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	st := &ps.alarms[t]
	if !st.active {
		e.mu.Unlock()
		return fmt.Errorf("%s %s alarm is not active: %w", pointID, t, types.ErrInvalidState)
	}

	st.acknowledged = true
	var events []Event
	if st.clearPending {
		events = append(events, e.deactivateLocked(ps, t, e.now()))
	}
	e.mu.Unlock()

	e.logger.Info("Alarm acknowledged",
		zap.String("point", pointID),
		zap.Stringer("type", t))

	e.notify(events)
	return nil
}

func (e *Engine) Statistics() (Stats, error) {
	if err := e.mu.Lock(); err != nil {
		return Stats{}, fmt.Errorf("alarm statistics: %w", err)
	}

	stats := Stats{
		TotalAlarms:     e.totalAlarms,
		CheckCycles:     e.checkCycles,
		SkippedCycles:   e.skippedCycles.Load(),
		LastCheck:       e.lastCheck,
		MonitoredPoints: len(e.order),
	}
	for _, ps := range e.points {
		for _, st := range ps.alarms {
			if st.active {
				stats.ActiveAlarms++
			}
		}
	}
	e.mu.Unlock()

	stats.Monitoring = e.IsRunning()
	return stats, nil
}

// PointIDs lists the monitored points in configuration order.
func (e *Engine) PointIDs() ([]string, error) {
	if err := e.mu.Lock(); err != nil {
		return nil, fmt.Errorf("alarm points: %w", err)
	}
	defer e.mu.Unlock()
	return append([]string(nil), e.order...), nil
}

func (e *Engine) pointLocked(pointID string) (*pointState, error) {
	if !e.configured {
		return nil, fmt.Errorf("alarm engine: %w", types.ErrNotInitialized)
	}
	ps, ok := e.points[pointID]
	if !ok {
		return nil, fmt.Errorf("alarm point %q: %w", pointID, types.ErrNotFound)
	}
	return ps, nil
}

func (e *Engine) evaluateLocked(ps *pointState, now time.Time) []Event {
	r := ps.rules
	enabled := [numTypes]bool{
		RateOfChange: r.CheckRateOfChange,
		Disconnected: r.CheckDisconnected,
		MaxValue:     r.CheckMaxValue,
		StuckSignal:  r.CheckStuckSignal,
	}

	var events []Event
	anyTriggered := false

	for _, t := range Types {
		if !enabled[t] {
			continue
		}
		triggered := ps.triggered(t)
		if triggered {
			anyTriggered = true
		}
		if ev, ok := e.stepLocked(ps, t, triggered, now); ok {
			events = append(events, ev)
		}
	}

	if anyTriggered {
		ps.goodSamples = 0
		return events
	}

	ps.goodSamples++
	if !ps.trustRestored && ps.goodSamples >= atLeastOne(r.SamplesToRestoreTrust) && !ps.anyActive() {
		ps.trustRestored = true
		e.logger.Info("Point trust restored", zap.String("point", ps.id))
	}

	return events
}

func (e *Engine) stepLocked(ps *pointState, t Type, triggered bool, now time.Time) (Event, bool) {
	st := &ps.alarms[t]

	if triggered {
		st.persistence++
		st.clearPending = false
		if st.persistence >= atLeastOne(ps.rules.PersistenceSamples) && !st.active {
			st.active = true
			st.activationCount++
			st.activatedAt = now
			st.acknowledged = false
			st.clear = 0
			ps.trustRestored = false
			e.totalAlarms++

			e.logger.Warn("Alarm activated",
				zap.String("point", ps.id),
				zap.Stringer("type", t),
				zap.Float32("value", ps.latest()))

			return e.event(ps, t, EventActivated, now), true
		}
		return Event{}, false
	}

	st.clear++
	if st.clear < atLeastOne(ps.rules.SamplesToClear) {
		return Event{}, false
	}

	st.persistence = 0
	if !st.active {
		return Event{}, false
	}
	if ps.rules.RequiresManualReset && !st.acknowledged {
		st.clearPending = true
		return Event{}, false
	}
	return e.deactivateLocked(ps, t, now), true
}

func (e *Engine) deactivateLocked(ps *pointState, t Type, now time.Time) Event {
	st := &ps.alarms[t]
	st.active = false
	st.clear = 0
	st.persistence = 0
	st.clearPending = false

	e.logger.Info("Alarm cleared",
		zap.String("point", ps.id),
		zap.Stringer("type", t))

	return e.event(ps, t, EventCleared, now)
}

func (e *Engine) event(ps *pointState, t Type, kind EventKind, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		PointID:   ps.id,
		Type:      t,
		Kind:      kind,
		Value:     ps.latest(),
		Timestamp: now,
	}
}

func (e *Engine) notify(events []Event) {
	if len(events) == 0 {
		return
	}

	e.notifyMu.RLock()
	defer e.notifyMu.RUnlock()

	for _, ev := range events {
		for _, n := range e.notifiers {
			n.Notify(ev)
		}
	}
}

func (ps *pointState) triggered(t Type) bool {
	h := &ps.hist
	r := ps.rules

	switch t {
	case RateOfChange:
		if h.count < 2 {
			return false
		}
		return math32.Abs(h.back(0)-h.back(1)) > r.RateOfChangeThreshold
	case Disconnected:
		return h.count >= 1 && h.back(0) <= r.DisconnectedThreshold
	case MaxValue:
		return h.count >= 1 && h.back(0) >= r.MaxValueThreshold
	case StuckSignal:
		window := r.StuckSignalWindowSamples
		if window < 2 || h.count < window {
			return false
		}
		ref := h.back(0)
		for i := 1; i < window; i++ {
			if math32.Abs(h.back(i)-ref) > r.StuckSignalDeltaThreshold {
				return false
			}
		}
		return true
	}
	return false
}

func (ps *pointState) latest() float32 {
	if ps.hist.count == 0 {
		return 0
	}
	return ps.hist.back(0)
}

func (ps *pointState) anyActive() bool {
	for _, st := range ps.alarms {
		if st.active {
			return true
		}
	}
	return false
}

func (ps *pointState) snapshot() PointAlarms {
	r := ps.rules
	enabled := [numTypes]bool{r.CheckRateOfChange, r.CheckDisconnected, r.CheckMaxValue, r.CheckStuckSignal}

	out := PointAlarms{
		PointID:       ps.id,
		Alarms:        make([]Status, 0, numTypes),
		TrustRestored: ps.trustRestored,
		GoodSamples:   ps.goodSamples,
		History:       ps.hist.values(),
	}
	for _, t := range Types {
		st := ps.alarms[t]
		out.Alarms = append(out.Alarms, Status{
			Type:            t,
			Enabled:         enabled[t],
			Active:          st.active,
			ActivationCount: st.activationCount,
			ActivatedAt:     st.activatedAt,
			Acknowledged:    st.acknowledged,
			ClearPending:    st.clearPending,
			Persistence:     st.persistence,
			ClearCount:      st.clear,
		})
	}
	return out
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
