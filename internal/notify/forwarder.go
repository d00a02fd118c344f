package notify

import (
	"sync"

	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"go.uber.org/zap"
)

const DefaultQueueSize = 64

// Forwarder is an alarm.Notifier that hands events to a Publisher on its
// own goroutine, so a slow broker never stalls the alarm engine. Events
// arriving while the queue is full are dropped and counted.
type Forwarder struct {
	pub    Publisher
	logger *zap.Logger
	queue  chan alarm.Event

	mu      sync.Mutex
	dropped uint64
	failed  uint64

	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ alarm.Notifier = (*Forwarder)(nil)

func NewForwarder(pub Publisher, queueSize int, logger *zap.Logger) *Forwarder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	f := &Forwarder{
		pub:    pub,
		logger: logger,
		queue:  make(chan alarm.Event, queueSize),
	}

	f.wg.Add(1)
	go f.run()
	return f
}

// Notify must not be called after Close.
func (f *Forwarder) Notify(ev alarm.Event) {
	select {
	case f.queue <- ev:
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		f.logger.Warn("MQTT alarm queue full, event dropped",
			zap.String("point", ev.PointID),
			zap.Stringer("type", ev.Type))
	}
}

// Close drains queued events and waits for the worker to exit. It does not
// close the publisher.
func (f *Forwarder) Close() {
	f.stopOnce.Do(func() {
		close(f.queue)
	})
	f.wg.Wait()
}

// Counts returns the number of dropped and failed events.
func (f *Forwarder) Counts() (dropped, failed uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped, f.failed
}

func (f *Forwarder) run() {
	defer f.wg.Done()

	for ev := range f.queue {
		if err := f.pub.PublishAlarm(ev); err != nil {
			f.mu.Lock()
			f.failed++
			f.mu.Unlock()
			f.logger.Error("Failed to publish alarm",
				zap.String("point", ev.PointID),
				zap.Stringer("type", ev.Type),
				zap.Error(err))
		}
	}
}
