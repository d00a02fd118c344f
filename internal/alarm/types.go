package alarm

import (
	"fmt"
	"strings"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/types"
)

// Type is one of the four rules evaluated per point.
type Type int

const (
	RateOfChange Type = iota
	Disconnected
	MaxValue
	StuckSignal

	numTypes
)

// Types lists every alarm type in evaluation order.
var Types = [numTypes]Type{RateOfChange, Disconnected, MaxValue, StuckSignal}

func (t Type) String() string {
	switch t {
	case RateOfChange:
		return "RATE_OF_CHANGE"
	case Disconnected:
		return "DISCONNECTED"
	case MaxValue:
		return "MAX_VALUE"
	case StuckSignal:
		return "STUCK_SIGNAL"
	default:
		return "UNKNOWN"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseType accepts the upper-case name or its lower-case/kebab form.
func ParseType(s string) (Type, error) {
	norm := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for _, t := range Types {
		if t.String() == norm {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown alarm type %q: %w", s, types.ErrInvalidArgument)
}

// EventKind is the transition carried by an Event.
type EventKind string

const (
	EventActivated EventKind = "activated"
	EventCleared   EventKind = "cleared"
)

// Event is emitted to notifiers after the engine lock is released.
type Event struct {
	ID        string    `json:"id"`
	PointID   string    `json:"point_id"`
	Type      Type      `json:"type"`
	Kind      EventKind `json:"kind"`
	Value     float32   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives alarm transitions. Implementations must not block.
type Notifier interface {
	Notify(ev Event)
}

type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Status is the externally visible state of one (point, type) alarm.
type Status struct {
	Type            Type      `json:"type"`
	Enabled         bool      `json:"enabled"`
	Active          bool      `json:"active"`
	ActivationCount uint32    `json:"activation_count"`
	ActivatedAt     time.Time `json:"activated_at,omitempty"`
	Acknowledged    bool      `json:"acknowledged"`
	ClearPending    bool      `json:"clear_pending"`
	Persistence     int       `json:"persistence_count"`
	ClearCount      int       `json:"clear_count"`
}

// PointAlarms is a copy of everything the engine holds for one point.
type PointAlarms struct {
	PointID       string    `json:"point_id"`
	Alarms        []Status  `json:"alarms"`
	TrustRestored bool      `json:"trust_restored"`
	GoodSamples   int       `json:"good_samples"`
	History       []float32 `json:"history"`
}

// AnyActive reports whether at least one alarm of the point is active.
func (p PointAlarms) AnyActive() bool {
	for _, s := range p.Alarms {
		if s.Active {
			return true
		}
	}
	return false
}

type Stats struct {
	TotalAlarms     uint64    `json:"total_alarms"`
	CheckCycles     uint64    `json:"check_cycles"`
	SkippedCycles   uint64    `json:"skipped_cycles"`
	LastCheck       time.Time `json:"last_check_time"`
	MonitoredPoints int       `json:"monitored_points"`
	ActiveAlarms    int       `json:"active_alarms"`
	Monitoring      bool      `json:"monitoring"`
}
