package alarm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPoint = "ai_moisture"

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func configWithRules(rules types.AlarmRules) *types.IOConfig {
	return &types.IOConfig{Points: []types.PointConfig{
		{
			ID:       testPoint,
			Type:     types.PointGPIOAnalogInput,
			RangeMax: 100,
			Alarm:    types.AlarmConfig{Enabled: true, Rules: rules},
		},
		{
			ID:       "ai_unmonitored",
			Type:     types.PointGPIOAnalogInput,
			Pin:      1,
			RangeMax: 100,
		},
		{
			ID:    "bi_switch",
			Type:  types.PointGPIOBinaryInput,
			Pin:   2,
			Alarm: types.AlarmConfig{Enabled: true, Rules: rules},
		},
	}}
}

var fixedNow = time.Date(2026, 5, 1, 6, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, rules types.AlarmRules, notifiers ...Notifier) *Engine {
	t.Helper()
	e := New(zap.NewNop(), Options{
		CheckInterval: 10 * time.Millisecond,
		Notifiers:     notifiers,
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, e.Configure(configWithRules(rules)))
	return e
}

// feed records v and evaluates, returning whether alarm t is active after.
func feed(t *testing.T, e *Engine, typ Type, v float32) bool {
	t.Helper()
	require.NoError(t, e.RecordSample(testPoint, v))
	require.NoError(t, e.Evaluate(testPoint))
	active, err := e.Status(testPoint, typ)
	require.NoError(t, err)
	return active
}

func status(t *testing.T, e *Engine, typ Type) Status {
	t.Helper()
	pa, err := e.Alarms(testPoint)
	require.NoError(t, err)
	return pa.Alarms[typ]
}

func TestRateOfChangeActivatesOnSecondDelta(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckRateOfChange:     true,
		RateOfChangeThreshold: 5,
		PersistenceSamples:    2,
		SamplesToClear:        3,
	})

	assert.False(t, feed(t, e, RateOfChange, 0), "single sample cannot trigger")
	assert.False(t, feed(t, e, RateOfChange, 10), "first delta only builds persistence")
	assert.True(t, feed(t, e, RateOfChange, 20), "second delta activates")
}

func TestRateOfChangeAtThresholdDoesNotTrigger(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckRateOfChange:     true,
		RateOfChangeThreshold: 5,
		PersistenceSamples:    1,
		SamplesToClear:        1,
	})

	feed(t, e, RateOfChange, 10)
	assert.False(t, feed(t, e, RateOfChange, 15))
	assert.True(t, feed(t, e, RateOfChange, 9))
}

func TestDisconnectedClearsAndResetsPersistence(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    2,
		SamplesToClear:        3,
	})

	assert.False(t, feed(t, e, Disconnected, 0))
	assert.True(t, feed(t, e, Disconnected, 1), "at threshold counts as disconnected")
	assert.Equal(t, 2, status(t, e, Disconnected).Persistence)

	assert.True(t, feed(t, e, Disconnected, 50))
	assert.True(t, feed(t, e, Disconnected, 50))
	assert.False(t, feed(t, e, Disconnected, 50), "third good sample clears")

	st := status(t, e, Disconnected)
	assert.Equal(t, 0, st.Persistence)
	assert.Equal(t, 0, st.ClearCount)
	assert.Equal(t, uint32(1), st.ActivationCount)
}

func TestMaxValue(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckMaxValue:      true,
		MaxValueThreshold:  90,
		PersistenceSamples: 1,
		SamplesToClear:     1,
	})

	assert.False(t, feed(t, e, MaxValue, 89.9))
	assert.True(t, feed(t, e, MaxValue, 90))
	assert.False(t, feed(t, e, MaxValue, 10))
}

func TestStuckSignal(t *testing.T) {
	rules := types.AlarmRules{
		CheckStuckSignal:          true,
		StuckSignalWindowSamples:  4,
		StuckSignalDeltaThreshold: 0.1,
		PersistenceSamples:        1,
		SamplesToClear:            1,
	}

	t.Run("all within tolerance of newest", func(t *testing.T) {
		e := newTestEngine(t, rules)
		var active bool
		for _, v := range []float32{5.0, 5.05, 5.02, 5.01} {
			active = feed(t, e, StuckSignal, v)
		}
		assert.True(t, active)
	})

	t.Run("newest sample moved", func(t *testing.T) {
		e := newTestEngine(t, rules)
		var active bool
		for _, v := range []float32{5.0, 5.05, 5.02, 6.0} {
			active = feed(t, e, StuckSignal, v)
		}
		assert.False(t, active)
	})

	t.Run("fewer samples than window", func(t *testing.T) {
		e := newTestEngine(t, rules)
		var active bool
		for _, v := range []float32{5.0, 5.0, 5.0} {
			active = feed(t, e, StuckSignal, v)
		}
		assert.False(t, active)
	})
}

func TestPersistenceIsStickyAcrossIsolatedGoodSamples(t *testing.T) {
	rules := types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    3,
		SamplesToClear:        2,
	}

	t.Run("one good sample does not reset persistence", func(t *testing.T) {
		e := newTestEngine(t, rules)

		assert.False(t, feed(t, e, Disconnected, 0))
		assert.False(t, feed(t, e, Disconnected, 50))
		assert.False(t, feed(t, e, Disconnected, 0))
		assert.Equal(t, 2, status(t, e, Disconnected).Persistence)
		assert.True(t, feed(t, e, Disconnected, 0), "third trigger activates despite the gap")
	})

	t.Run("reaching the clear count resets persistence", func(t *testing.T) {
		e := newTestEngine(t, rules)

		feed(t, e, Disconnected, 0)
		feed(t, e, Disconnected, 50)
		feed(t, e, Disconnected, 50)
		assert.Equal(t, 0, status(t, e, Disconnected).Persistence)

		assert.False(t, feed(t, e, Disconnected, 0))
		assert.Equal(t, 1, status(t, e, Disconnected).Persistence)
	})
}

func TestActivationResetsClearCount(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckMaxValue:      true,
		MaxValueThreshold:  10,
		PersistenceSamples: 1,
		SamplesToClear:     3,
	})

	for i := 0; i < 5; i++ {
		feed(t, e, MaxValue, 0)
	}
	assert.True(t, feed(t, e, MaxValue, 20))
	assert.Equal(t, 0, status(t, e, MaxValue).ClearCount)
	assert.True(t, feed(t, e, MaxValue, 0), "one good sample is not enough to clear")
}

func TestRulesAreIndependent(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		CheckMaxValue:         true,
		MaxValueThreshold:     90,
		PersistenceSamples:    1,
		SamplesToClear:        1,
	})

	assert.True(t, feed(t, e, MaxValue, 95))
	active, err := e.Status(testPoint, Disconnected)
	require.NoError(t, err)
	assert.False(t, active)

	assert.True(t, feed(t, e, Disconnected, 0))
	active, err = e.Status(testPoint, MaxValue)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestManualResetLatchesUntilAcknowledged(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    1,
		SamplesToClear:        1,
		RequiresManualReset:   true,
	}, rec)

	assert.True(t, feed(t, e, Disconnected, 0))
	assert.True(t, feed(t, e, Disconnected, 50), "condition cleared but alarm latched")
	assert.True(t, status(t, e, Disconnected).ClearPending)

	require.NoError(t, e.Acknowledge(testPoint, Disconnected))
	active, err := e.Status(testPoint, Disconnected)
	require.NoError(t, err)
	assert.False(t, active)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventActivated, events[0].Kind)
	assert.Equal(t, EventCleared, events[1].Kind)
}

func TestAcknowledgedAlarmClearsAutomatically(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    1,
		SamplesToClear:        1,
		RequiresManualReset:   true,
	})

	assert.True(t, feed(t, e, Disconnected, 0))
	require.NoError(t, e.Acknowledge(testPoint, Disconnected))
	assert.True(t, status(t, e, Disconnected).Acknowledged)
	assert.False(t, feed(t, e, Disconnected, 50))
}

func TestAcknowledgeErrors(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{CheckDisconnected: true})

	err := e.Acknowledge(testPoint, Disconnected)
	assert.True(t, errors.Is(err, types.ErrInvalidState))

	err = e.Acknowledge("nope", Disconnected)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = e.Acknowledge(testPoint, Type(9))
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestTrustRestoredAfterGoodSamples(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    1,
		SamplesToClear:        1,
		SamplesToRestoreTrust: 3,
	})

	pa, err := e.Alarms(testPoint)
	require.NoError(t, err)
	assert.True(t, pa.TrustRestored)

	feed(t, e, Disconnected, 0)
	pa, _ = e.Alarms(testPoint)
	assert.False(t, pa.TrustRestored)

	feed(t, e, Disconnected, 50)
	feed(t, e, Disconnected, 50)
	pa, _ = e.Alarms(testPoint)
	assert.False(t, pa.TrustRestored)
	assert.Equal(t, 2, pa.GoodSamples)

	feed(t, e, Disconnected, 50)
	pa, _ = e.Alarms(testPoint)
	assert.True(t, pa.TrustRestored)
}

func TestConfigureMonitorsEnabledAnalogInputsOnly(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{CheckDisconnected: true})

	ids, err := e.PointIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{testPoint}, ids)

	assert.True(t, errors.Is(e.RecordSample("bi_switch", 1), types.ErrNotFound))
	assert.True(t, errors.Is(e.RecordSample("ai_unmonitored", 1), types.ErrNotFound))
}

func TestUnconfiguredEngine(t *testing.T) {
	e := New(zap.NewNop(), Options{})

	assert.True(t, errors.Is(e.RecordSample(testPoint, 1), types.ErrNotInitialized))
	_, err := e.AllAlarms()
	assert.True(t, errors.Is(err, types.ErrNotInitialized))
	assert.True(t, errors.Is(e.Start(), types.ErrNotInitialized))
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{})

	for i := 0; i < HistorySize+5; i++ {
		require.NoError(t, e.RecordSample(testPoint, float32(i)))
	}

	pa, err := e.Alarms(testPoint)
	require.NoError(t, err)
	require.Len(t, pa.History, HistorySize)
	assert.Equal(t, float32(5), pa.History[0])
	assert.Equal(t, float32(HistorySize+4), pa.History[HistorySize-1])
}

func TestEvaluateWithEmptyHistory(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{
		CheckRateOfChange:  true,
		CheckDisconnected:  true,
		CheckMaxValue:      true,
		CheckStuckSignal:   true,
		PersistenceSamples: 1,
	})

	require.NoError(t, e.Evaluate(testPoint))
	pa, err := e.Alarms(testPoint)
	require.NoError(t, err)
	assert.False(t, pa.AnyActive())
}

func TestCheckAllStatisticsAndEvents(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(t, types.AlarmRules{
		CheckMaxValue:      true,
		MaxValueThreshold:  10,
		PersistenceSamples: 1,
		SamplesToClear:     1,
	}, rec)

	require.NoError(t, e.RecordSample(testPoint, 20))
	require.NoError(t, e.CheckAll())
	require.NoError(t, e.RecordSample(testPoint, 0))
	require.NoError(t, e.CheckAll())
	require.NoError(t, e.RecordSample(testPoint, 30))
	require.NoError(t, e.CheckAll())

	stats, err := e.Statistics()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalAlarms)
	assert.Equal(t, uint64(3), stats.CheckCycles)
	assert.Equal(t, fixedNow, stats.LastCheck)
	assert.Equal(t, 1, stats.MonitoredPoints)
	assert.Equal(t, 1, stats.ActiveAlarms)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, EventActivated, events[0].Kind)
	assert.Equal(t, float32(20), events[0].Value)
	assert.Equal(t, MaxValue, events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[2].ID)
	assert.Equal(t, EventCleared, events[1].Kind)
}

func TestMonitorLoop(t *testing.T) {
	e := newTestEngine(t, types.AlarmRules{CheckDisconnected: true})

	require.NoError(t, e.Start())
	assert.True(t, errors.Is(e.Start(), types.ErrInvalidState))

	require.Eventually(t, func() bool {
		stats, err := e.Statistics()
		return err == nil && stats.CheckCycles >= 2
	}, time.Second, 5*time.Millisecond)

	e.Stop()
	assert.False(t, e.IsRunning())
	e.Stop()
}

func TestReloadRebuildsState(t *testing.T) {
	rules := types.AlarmRules{
		CheckDisconnected:     true,
		DisconnectedThreshold: 1,
		PersistenceSamples:    1,
		SamplesToClear:        1,
	}
	e := newTestEngine(t, rules)
	require.True(t, feed(t, e, Disconnected, 0))
	require.NoError(t, e.Start())

	cfg := configWithRules(rules)
	cfg.Points[0].ID = "ai_renamed"
	require.NoError(t, e.Reload(cfg))
	assert.True(t, e.IsRunning())

	_, err := e.Alarms(testPoint)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	pa, err := e.Alarms("ai_renamed")
	require.NoError(t, err)
	assert.False(t, pa.AnyActive())
	assert.Empty(t, pa.History)

	require.Error(t, e.Reload(nil))
	_, err = e.Alarms("ai_renamed")
	assert.NoError(t, err, "failed reload keeps previous state")
	assert.True(t, e.IsRunning())

	e.Stop()
}

func TestParseType(t *testing.T) {
	for _, typ := range Types {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	got, err := ParseType("stuck-signal")
	require.NoError(t, err)
	assert.Equal(t, StuckSignal, got)

	_, err = ParseType("flood")
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}
