package iomanager

import (
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// Reading is the value part of a point's runtime state.
type Reading struct {
	RawValue         float32 `json:"raw_value"`
	ConditionedValue float32 `json:"conditioned_value"`
	DigitalState     bool    `json:"digital_state"`
	ErrorState       bool    `json:"error_state"`
}

// PointSnapshot is one point's configuration and state read together.
type PointSnapshot struct {
	Config types.PointConfig `json:"config"`
	State  RuntimeState      `json:"state"`
}

// RuntimeState is a copy of everything the manager tracks for one point.
type RuntimeState struct {
	Reading
	LastUpdate  time.Time `json:"last_update_time"`
	UpdateCount uint32    `json:"update_count"`
	ErrorCount  uint32    `json:"error_count"`
}

// Update is delivered to listeners after a point changed.
type Update struct {
	PointID   string          `json:"point_id"`
	Type      types.PointType `json:"type"`
	Reading   Reading         `json:"reading"`
	Timestamp time.Time       `json:"timestamp"`
}

// SampleSink consumes conditioned analog values, typically the alarm engine.
type SampleSink interface {
	RecordSample(pointID string, value float32) error
}

// Listener observes point updates. Implementations must not block.
type Listener interface {
	PointUpdated(u Update)
}

type ListenerFunc func(u Update)

func (f ListenerFunc) PointUpdated(u Update) { f(u) }

type Statistics struct {
	UpdateCycles  uint64    `json:"update_cycles"`
	TotalErrors   uint64    `json:"total_errors"`
	SkippedCycles uint64    `json:"skipped_cycles"`
	LastUpdate    time.Time `json:"last_update_time"`
	PointCount    int       `json:"point_count"`
	Polling       bool      `json:"polling"`
}
