// Package notify publishes alarm transitions and daemon status to MQTT.
package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
)

const DefaultTopicPrefix = "irrigation"

// Publisher sends messages to the broker.
type Publisher interface {
	// PublishAlarm sends one alarm transition. Errors are reported, never fatal.
	PublishAlarm(ev alarm.Event) error

	// PublishStatus sends a retained daemon status message.
	PublishStatus(s StatusEvent) error

	Close() error
}

// StatusEvent is a daemon lifecycle message such as STARTUP or SHUTDOWN.
type StatusEvent struct {
	Timestamp time.Time
	State     string
	Reason    string
}

type AlarmPayload struct {
	Alarm AlarmBody `json:"alarm"`
}

type AlarmBody struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Point     string  `json:"point"`
	Type      string  `json:"type"`
	Event     string  `json:"event"`
	Value     float32 `json:"value"`
}

type StatusPayload struct {
	System StatusBody `json:"system"`
}

type StatusBody struct {
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// AlarmTopic returns <prefix>/alarms/<point>.
func AlarmTopic(prefix, pointID string) string {
	return normalizePrefix(prefix) + "/alarms/" + pointID
}

// StatusTopic returns <prefix>/status.
func StatusTopic(prefix string) string {
	return normalizePrefix(prefix) + "/status"
}

func FormatAlarmPayload(ev alarm.Event) ([]byte, error) {
	return json.Marshal(AlarmPayload{
		Alarm: AlarmBody{
			ID:        ev.ID,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Point:     ev.PointID,
			Type:      ev.Type.String(),
			Event:     string(ev.Kind),
			Value:     ev.Value,
		},
	})
}

func FormatStatusPayload(s StatusEvent) ([]byte, error) {
	return json.Marshal(StatusPayload{
		System: StatusBody{
			Timestamp: s.Timestamp.UTC().Format(time.RFC3339),
			State:     s.State,
			Reason:    s.Reason,
		},
	})
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return DefaultTopicPrefix
	}
	return prefix
}
