package websocket

import (
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/rbattiston/SNRv9-sub001/internal/iomanager"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypePointUpdate MessageType = "point_update"

	MessageTypeAlarmActivated MessageType = "alarm_activated"
	MessageTypeAlarmCleared   MessageType = "alarm_cleared"

	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`

	// point is used for subscription filtering and is empty for
	// messages that go to every client.
	point string
}

type PointUpdateData struct {
	PointID          string  `json:"point_id"`
	Type             string  `json:"type"`
	RawValue         float32 `json:"raw_value"`
	ConditionedValue float32 `json:"conditioned_value"`
	DigitalState     bool    `json:"digital_state"`
	ErrorState       bool    `json:"error_state"`
}

type AlarmData struct {
	EventID string  `json:"event_id"`
	PointID string  `json:"point_id"`
	Alarm   string  `json:"alarm_type"`
	Value   float32 `json:"value"`
}

type SystemStatusData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewPointUpdateMessage(u iomanager.Update) Message {
	msg := NewMessage(MessageTypePointUpdate, PointUpdateData{
		PointID:          u.PointID,
		Type:             string(u.Type),
		RawValue:         u.Reading.RawValue,
		ConditionedValue: u.Reading.ConditionedValue,
		DigitalState:     u.Reading.DigitalState,
		ErrorState:       u.Reading.ErrorState,
	})
	msg.Timestamp = u.Timestamp
	msg.point = u.PointID
	return msg
}

func NewAlarmMessage(ev alarm.Event) Message {
	msgType := MessageTypeAlarmActivated
	if ev.Kind == alarm.EventCleared {
		msgType = MessageTypeAlarmCleared
	}

	msg := NewMessage(msgType, AlarmData{
		EventID: ev.ID,
		PointID: ev.PointID,
		Alarm:   ev.Type.String(),
		Value:   ev.Value,
	})
	msg.Timestamp = ev.Timestamp
	msg.point = ev.PointID
	return msg
}

func NewSystemStatusMessage(state, previous string) Message {
	return NewMessage(MessageTypeSystemStatus, SystemStatusData{
		State:    state,
		Previous: previous,
	})
}
