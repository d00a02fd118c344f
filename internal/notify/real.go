package notify

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

// NewRealPublisher connects to broker. The broker publishes a retained
// OFFLINE status if the connection drops.
func NewRealPublisher(broker, clientID, prefix string) (*RealPublisher, error) {
	will, err := FormatStatusPayload(StatusEvent{Timestamp: time.Now(), State: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(StatusTopic(prefix), will, 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client, prefix: prefix}, nil
}

func (p *RealPublisher) PublishAlarm(ev alarm.Event) error {
	payload, err := FormatAlarmPayload(ev)
	if err != nil {
		return fmt.Errorf("format alarm payload: %w", err)
	}

	// QoS 1, alarms should not be lost on a flaky link
	token := p.client.Publish(AlarmTopic(p.prefix, ev.PointID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish alarm timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alarm: %w", err)
	}
	return nil
}

func (p *RealPublisher) PublishStatus(s StatusEvent) error {
	payload, err := FormatStatusPayload(s)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}

	token := p.client.Publish(StatusTopic(p.prefix), 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish status timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
