package system

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/rbattiston/SNRv9-sub001/internal/config"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/notify"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeIOConfig(t *testing.T, path string, keep int) {
	t.Helper()

	data, err := os.ReadFile("../ioconfig/testdata/io-config.json")
	require.NoError(t, err)

	if keep > 0 {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		points := doc["ioPoints"].([]any)
		doc["ioPoints"] = points[:keep]
		data, err = json.Marshal(doc)
		require.NoError(t, err)
	}

	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "io-config.json")
	writeIOConfig(t, path, 0)

	return &config.Config{
		Server: config.ServerConfig{ShutdownTimeout: 5 * time.Second},
		IO: config.IOConfig{
			ConfigPath:   path,
			PollInterval: 5 * time.Millisecond,
			LockTimeout:  100 * time.Millisecond,
			ADCMaxCode:   4095,
		},
		Alarms:   config.AlarmsConfig{CheckInterval: 5 * time.Millisecond},
		Hardware: config.HardwareConfig{Backend: config.BackendFake},
	}
}

func newTestLifecycle(t *testing.T, cfg *config.Config, pub notify.Publisher) *LifecycleManager {
	t.Helper()

	lm, err := NewLifecycleManager(cfg, zap.NewNop(), Options{Publisher: pub, NoListeners: true})
	require.NoError(t, err)
	t.Cleanup(func() { lm.Shutdown(context.Background()) })
	return lm
}

func TestLifecycleStartReloadShutdown(t *testing.T) {
	cfg := testConfig(t)
	pub := notify.NewFakePublisher()
	lm := newTestLifecycle(t, cfg, pub)

	require.NoError(t, lm.Start())
	assert.Equal(t, StateRunning, lm.State())

	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.True(t, status.Operational)
	assert.Equal(t, 4, status.PointCount)
	assert.True(t, status.Polling)
	assert.True(t, status.AlarmMonitoring)
	assert.Equal(t, cfg.IO.ConfigPath, status.ConfigPath)

	rec := httptest.NewRecorder()
	lm.RESTHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/io/points/sr_zone_1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	writeIOConfig(t, cfg.IO.ConfigPath, 2)
	require.NoError(t, lm.Reload())
	assert.Equal(t, 2, lm.GetCurrentStatus().PointCount)
	assert.True(t, lm.IOManager().IsRunning())
	assert.True(t, lm.AlarmEngine().IsRunning())

	require.NoError(t, os.WriteFile(cfg.IO.ConfigPath, []byte(`{"ioPoints": [`), 0o644))
	assert.Error(t, lm.Reload())
	assert.Equal(t, StateRunning, lm.State())
	assert.Equal(t, 2, lm.GetCurrentStatus().PointCount)

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
	assert.False(t, lm.IOManager().IsRunning())
	assert.False(t, lm.AlarmEngine().IsRunning())
	assert.True(t, pub.Closed())

	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}

	assert.ErrorIs(t, lm.Reload(), types.ErrInvalidState)
}

func TestLifecyclePublishesAlarms(t *testing.T) {
	pub := notify.NewFakePublisher()
	lm := newTestLifecycle(t, testConfig(t), pub)
	require.NoError(t, lm.Start())

	// the fake ADC reads zero, so the tank level sensor looks disconnected
	require.Eventually(t, func() bool {
		for _, ev := range pub.Alarms() {
			if ev.PointID == "ai_tank_level" && ev.Type == alarm.Disconnected && ev.Kind == alarm.EventActivated {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	active, err := lm.AlarmEngine().Status("ai_tank_level", alarm.Disconnected)
	require.NoError(t, err)
	assert.True(t, active)

	var states []string
	for _, s := range pub.Statuses() {
		states = append(states, s.State)
	}
	assert.Contains(t, states, "RUNNING")
}

func TestLifecycleStartFailsWithoutConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.IO.ConfigPath = filepath.Join(t.TempDir(), "missing.json")
	lm := newTestLifecycle(t, cfg, nil)

	assert.Error(t, lm.Start())
	assert.Equal(t, StateError, lm.State())
	assert.False(t, lm.IOManager().IsRunning())

	assert.ErrorIs(t, lm.Reload(), types.ErrInvalidState)
	assert.Equal(t, StateError, lm.State())
	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
}

// writeExtendedIOConfig writes the test config plus a monitored analog
// input on pin 1 and a pump output on pin 30.
func writeExtendedIOConfig(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile("../ioconfig/testdata/io-config.json")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	points := doc["ioPoints"].([]any)

	var analog map[string]any
	raw, err := json.Marshal(points[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &analog))
	analog["id"] = "ai_new"
	analog["name"] = "Reservoir Level"
	analog["pin"] = 1

	points = append(points, analog, map[string]any{
		"id": "bo_new", "name": "Booster Pump", "type": "GPIO_BO", "pin": 30,
	})
	doc["ioPoints"] = points

	data, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newFakeHardwareLifecycle(t *testing.T) (*LifecycleManager, *hardware.Fake, *hardware.FakeShiftRegisters, *config.Config) {
	t.Helper()

	cfg := testConfig(t)
	gpio := hardware.NewFake()
	shift := hardware.NewFakeShiftRegisters()
	lm, err := NewLifecycleManager(cfg, zap.NewNop(), Options{GPIO: gpio, Shift: shift, NoListeners: true})
	require.NoError(t, err)
	t.Cleanup(func() { lm.Shutdown(context.Background()) })
	return lm, gpio, shift, cfg
}

func TestFailedReloadKeepsWholeSystemOnPreviousConfig(t *testing.T) {
	lm, gpio, _, cfg := newFakeHardwareLifecycle(t)
	require.NoError(t, lm.Start())

	oldIO, err := lm.IOManager().PointIDs()
	require.NoError(t, err)
	oldAlarms, err := lm.AlarmEngine().PointIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"ai_tank_level"}, oldAlarms)

	writeExtendedIOConfig(t, cfg.IO.ConfigPath)
	gpio.FailWrites(30, errors.New("line busy"))

	require.Error(t, lm.Reload())
	assert.Equal(t, StateRunning, lm.State())

	ioIDs, err := lm.IOManager().PointIDs()
	require.NoError(t, err)
	assert.Equal(t, oldIO, ioIDs)
	alarmIDs, err := lm.AlarmEngine().PointIDs()
	require.NoError(t, err)
	assert.Equal(t, oldAlarms, alarmIDs)
	_, err = lm.ConfigStore().Point("ai_new")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.True(t, lm.IOManager().IsRunning())
	assert.True(t, lm.AlarmEngine().IsRunning())

	// once the fault clears the same file goes through
	gpio.FailWrites(30, nil)
	require.NoError(t, lm.Reload())
	assert.Equal(t, StateRunning, lm.State())

	ioIDs, err = lm.IOManager().PointIDs()
	require.NoError(t, err)
	assert.Equal(t, append(append([]string(nil), oldIO...), "ai_new", "bo_new"), ioIDs)
	alarmIDs, err = lm.AlarmEngine().PointIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"ai_tank_level", "ai_new"}, alarmIDs)
	_, err = lm.ConfigStore().Point("ai_new")
	require.NoError(t, err)
}

func TestReloadRecoversFromError(t *testing.T) {
	lm, _, shift, cfg := newFakeHardwareLifecycle(t)
	require.NoError(t, lm.Start())

	// the chain cannot latch, so neither the new nor the old table routes
	writeIOConfig(t, cfg.IO.ConfigPath, 3)
	shift.FailFlush(errors.New("latch stuck"))
	require.Error(t, lm.Reload())
	assert.Equal(t, StateError, lm.State())
	assert.False(t, lm.IOManager().IsRunning())
	assert.False(t, lm.GetCurrentStatus().Operational)

	shift.FailFlush(nil)
	require.NoError(t, lm.Reload())
	assert.Equal(t, StateRunning, lm.State())
	assert.True(t, lm.IOManager().IsRunning())
	assert.True(t, lm.AlarmEngine().IsRunning())
	assert.Equal(t, 3, lm.GetCurrentStatus().PointCount)
}

func TestSubscribeStatus(t *testing.T) {
	lm := newTestLifecycle(t, testConfig(t), nil)
	ch := lm.SubscribeStatus()

	require.NoError(t, lm.Start())

	var got []SystemState
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case st := <-ch:
			got = append(got, st.State)
		case <-timeout:
			t.Fatalf("status updates: %v", got)
		}
	}
	assert.Equal(t, []SystemState{StateInitializing, StateRunning}, got)

	lm.UnsubscribeStatus(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateRunning, StateReloading, true},
		{StateReloading, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateInitializing, StateReloading, false},
		{StateStopped, StateReloading, false},
		{StateReloading, StateReloading, false},
		{StateError, StateRunning, false},
		{StateError, StateReloading, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, types.ErrInvalidState, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestSystemStatusJSONUsesStateNames(t *testing.T) {
	data, err := json.Marshal(SystemStatus{State: StateReloading, Previous: StateRunning, Timestamp: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"RELOADING","previous_state":"RUNNING","timestamp":1}`, string(data))

	assert.True(t, StateReloading.Operational())
	assert.False(t, StateStopping.Operational())
	assert.False(t, StateError.Operational())
}
