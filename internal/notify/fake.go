package notify

import (
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	alarms   []alarm.Event
	statuses []StatusEvent
	closed   bool

	// PublishError, if set, is returned by every publish call.
	PublishError error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishAlarm(ev alarm.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.alarms = append(f.alarms, ev)
	return nil
}

func (f *FakePublisher) PublishStatus(s StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.statuses = append(f.statuses, s)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakePublisher) Alarms() []alarm.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alarm.Event(nil), f.alarms...)
}

func (f *FakePublisher) Statuses() []StatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StatusEvent(nil), f.statuses...)
}

func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
