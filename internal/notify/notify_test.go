package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent() alarm.Event {
	return alarm.Event{
		ID:        "0b7c9f5e-1111-4c4c-9d9d-000000000001",
		PointID:   "ai_tank_level",
		Type:      alarm.MaxValue,
		Kind:      alarm.EventActivated,
		Value:     97.5,
		Timestamp: time.Date(2026, 7, 3, 5, 0, 12, 0, time.FixedZone("CEST", 2*3600)),
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "irrigation/alarms/ai_tank_level", AlarmTopic("irrigation", "ai_tank_level"))
	assert.Equal(t, "farm/north/alarms/x", AlarmTopic("/farm/north/", "x"))
	assert.Equal(t, "irrigation/status", StatusTopic(""))
}

func TestFormatAlarmPayload(t *testing.T) {
	payload, err := FormatAlarmPayload(testEvent())
	require.NoError(t, err)

	var parsed AlarmPayload
	require.NoError(t, json.Unmarshal(payload, &parsed))

	assert.Equal(t, "2026-07-03T03:00:12Z", parsed.Alarm.Timestamp)
	assert.Equal(t, "ai_tank_level", parsed.Alarm.Point)
	assert.Equal(t, "MAX_VALUE", parsed.Alarm.Type)
	assert.Equal(t, "activated", parsed.Alarm.Event)
	assert.Equal(t, float32(97.5), parsed.Alarm.Value)
	assert.NotEmpty(t, parsed.Alarm.ID)
}

func TestFormatStatusPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatStatusPayload(StatusEvent{Timestamp: time.Unix(0, 0), State: "RUNNING"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"system":{"timestamp":"1970-01-01T00:00:00Z","state":"RUNNING"}}`, string(payload))
}

func TestForwarderPublishesInOrder(t *testing.T) {
	pub := NewFakePublisher()
	fwd := NewForwarder(pub, 8, zap.NewNop())

	first := testEvent()
	second := testEvent()
	second.Kind = alarm.EventCleared

	fwd.Notify(first)
	fwd.Notify(second)
	fwd.Close()

	got := pub.Alarms()
	require.Len(t, got, 2)
	assert.Equal(t, alarm.EventActivated, got[0].Kind)
	assert.Equal(t, alarm.EventCleared, got[1].Kind)
	assert.False(t, pub.Closed())
}

func TestForwarderCountsFailures(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	fwd := NewForwarder(pub, 8, zap.NewNop())

	fwd.Notify(testEvent())
	fwd.Close()

	_, failed := fwd.Counts()
	assert.Equal(t, uint64(1), failed)
	assert.Empty(t, pub.Alarms())
}

type blockingPublisher struct {
	*FakePublisher
	release chan struct{}
}

func (b *blockingPublisher) PublishAlarm(ev alarm.Event) error {
	<-b.release
	return b.FakePublisher.PublishAlarm(ev)
}

func TestForwarderDropsWhenFull(t *testing.T) {
	pub := &blockingPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
	fwd := NewForwarder(pub, 1, zap.NewNop())

	// worker holds at most one event, queue holds one more
	for i := 0; i < 5; i++ {
		fwd.Notify(testEvent())
	}
	close(pub.release)
	fwd.Close()

	dropped, _ := fwd.Counts()
	assert.GreaterOrEqual(t, dropped, uint64(3))
	assert.Equal(t, 5, int(dropped)+len(pub.Alarms()))
}
