package ioconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestLoadJSON(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.Load("testdata/io-config.json")
	require.NoError(t, err)
	require.Len(t, cfg.Points, 4)

	tank, err := s.Point("ai_tank_level")
	require.NoError(t, err)
	assert.Equal(t, types.PointGPIOAnalogInput, tank.Type)
	assert.Equal(t, types.FilterSMA, tank.Signal.Filter)
	assert.Equal(t, float32(1), tank.Signal.Gain, "gain defaults to 1")
	assert.Equal(t, float32(1), tank.Signal.ScalingFactor)
	assert.Equal(t, 3, tank.Alarm.Rules.PersistenceSamples)
	assert.Equal(t, 1, tank.Alarm.Rules.SamplesToRestoreTrust)
	assert.True(t, tank.Monitored())

	flow, err := s.Point("bi_flow_switch")
	require.NoError(t, err)
	assert.True(t, flow.Inverted)
	assert.False(t, flow.Monitored())

	assert.Equal(t, 1, cfg.ShiftRegisters.NumOutputRegisters)
}

func TestLoadYAML(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.Load("testdata/io-config.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Points, 2)

	p, err := s.Point("ai_pressure")
	require.NoError(t, err)
	assert.Equal(t, float32(2), p.Signal.Gain)
	require.Len(t, p.Signal.LookupTable, 2)
	assert.Equal(t, float32(100), p.Signal.LookupTable[1].Output)

	pump, err := s.Point("pump_main")
	require.NoError(t, err)
	assert.Equal(t, types.OutputPump, pump.OutputKind)
}

func TestPointUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Point("x")
	assert.True(t, errors.Is(err, types.ErrNotInitialized))

	_, err = s.Load("testdata/io-config.json")
	require.NoError(t, err)

	_, err = s.Point("does_not_exist")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("testdata/io-config.yaml")
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	snap.Points[0].ID = "mutated"
	snap.Points[0].Signal.LookupTable[0].Output = 42

	again, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "ai_pressure", again.Points[0].ID)
	assert.Equal(t, float32(0), again.Points[0].Signal.LookupTable[0].Output)
}

func TestCandidateRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "io.json")

	good, err := os.ReadFile("testdata/io-config.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, good, 0o644))

	s := newTestStore(t)
	_, err = s.Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"ioPoints":[{"id":"a","type":"BOGUS"}]}`), 0o644))
	_, err = s.Candidate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Points, 4)
}

func TestCandidateDoesNotCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "io.json")

	good, err := os.ReadFile("testdata/io-config.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, good, 0o644))

	s := newTestStore(t)
	_, err = s.Load(path)
	require.NoError(t, err)

	next := strings.Replace(string(good), `"id": "sr_rain_sensor"`, `"id": "sr_soil_sensor"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o644))

	cand, err := s.Candidate()
	require.NoError(t, err)
	_, err = cand.Point("sr_soil_sensor")
	require.NoError(t, err)

	_, err = s.Point("sr_soil_sensor")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.Point("sr_rain_sensor")
	require.NoError(t, err)

	require.NoError(t, s.Apply(cand))
	_, err = s.Point("sr_soil_sensor")
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
}

func TestCandidateWithoutLoad(t *testing.T) {
	_, err := newTestStore(t).Candidate()
	assert.True(t, errors.Is(err, types.ErrNotInitialized))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing points", `{}`},
		{"bad type", `{"ioPoints":[{"id":"a","type":"GPIO_XX"}]}`},
		{"duplicate id", `{"ioPoints":[
			{"id":"a","type":"GPIO_BI","pin":1},
			{"id":"a","type":"GPIO_BI","pin":2}]}`},
		{"duplicate pin", `{"ioPoints":[
			{"id":"a","type":"GPIO_BI","pin":1},
			{"id":"b","type":"GPIO_BO","pin":1}]}`},
		{"chip outside chain", `{"shiftRegisterConfig":{"numOutputRegisters":1},
			"ioPoints":[{"id":"a","type":"SHIFT_REG_BO","chipIndex":1,"bitIndex":0}]}`},
		{"duplicate shift address", `{"shiftRegisterConfig":{"numInputRegisters":1},"ioPoints":[
			{"id":"a","type":"SHIFT_REG_BI","chipIndex":0,"bitIndex":2},
			{"id":"b","type":"SHIFT_REG_BI","chipIndex":0,"bitIndex":2}]}`},
		{"empty range", `{"ioPoints":[{"id":"a","type":"GPIO_AI","pin":0,"rangeMin":5,"rangeMax":5}]}`},
		{"sma window", `{"ioPoints":[{"id":"a","type":"GPIO_AI","pin":0,"rangeMax":1,
			"signalConfig":{"enabled":true,"smaWindowSize":17}}]}`},
		{"lookup not increasing", `{"ioPoints":[{"id":"a","type":"GPIO_AI","pin":0,"rangeMax":1,
			"signalConfig":{"enabled":true,"lookupTableEnabled":true,
			"lookupTable":[{"input":1,"output":0},{"input":1,"output":5}]}}]}`},
		{"stuck window", `{"ioPoints":[{"id":"a","type":"GPIO_AI","pin":0,"rangeMax":1,
			"alarmConfig":{"enabled":true,"rules":{"checkStuckSignal":true,"stuckSignalWindowSamples":1}}}]}`},
	}

	s := newTestStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestApplyValidates(t *testing.T) {
	s := newTestStore(t)

	err := s.Apply(&types.IOConfig{Points: []types.PointConfig{{ID: "a", Type: "NOPE"}}})
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	require.NoError(t, s.Apply(&types.IOConfig{Points: []types.PointConfig{
		{ID: "valve", Type: types.PointGPIOBinaryOutput, Pin: 4},
	}}))
	p, err := s.Point("valve")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Pin)
}
