package interfaces

import (
	"github.com/rbattiston/SNRv9-sub001/internal/alarm"
	"github.com/rbattiston/SNRv9-sub001/internal/config"
	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/ioconfig"
	"github.com/rbattiston/SNRv9-sub001/internal/iomanager"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State           string `json:"state"`
	Operational     bool   `json:"operational"`
	ConfigPath      string `json:"config_path,omitempty"`
	PointCount      int    `json:"point_count"`
	Polling         bool   `json:"polling"`
	AlarmMonitoring bool   `json:"alarm_monitoring"`
	ActiveAlarms    int    `json:"active_alarms"`
	Timestamp       int64  `json:"timestamp"`
}

type LifecycleManager interface {
	Config() *config.Config
	ConfigStore() *ioconfig.Store
	IOManager() *iomanager.Manager
	AlarmEngine() *alarm.Engine
	ShiftRegisters() hardware.ShiftRegisters
	GetCurrentStatus() SystemStatus
	Reload() error
}
