package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 50051, cfg.Server.GRPCPort)
	assert.Equal(t, time.Second, cfg.IO.PollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.IO.LockTimeout)
	assert.Equal(t, uint16(4095), cfg.IO.ADCMaxCode)
	assert.Equal(t, 5*time.Second, cfg.Alarms.CheckInterval)
	assert.Equal(t, BackendFake, cfg.Hardware.Backend)
	assert.Equal(t, time.Microsecond, cfg.Hardware.BitDelay)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.IO.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Alarms.CheckInterval)
	assert.Equal(t, "configs/io-config.json", cfg.IO.ConfigPath)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
io:
  config_path: /etc/irrigation/io.yaml
  poll_interval: 250ms
hardware:
  backend: gpiocdev
  chip: gpiochip1
  serial_adc:
    port: /dev/ttyUSB0
mqtt:
  enabled: true
  topic_prefix: farm/north
logging:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "/etc/irrigation/io.yaml", cfg.IO.ConfigPath)
	assert.Equal(t, 250*time.Millisecond, cfg.IO.PollInterval)
	assert.Equal(t, BackendGPIOCdev, cfg.Hardware.Backend)
	assert.Equal(t, "gpiochip1", cfg.Hardware.Chip)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Hardware.ADC.Port)
	assert.Equal(t, 115200, cfg.Hardware.ADC.Baud)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "farm/north", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SNR_SERVER_HTTP_PORT", "7070")
	t.Setenv("SNR_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "server:\n  http_port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"backend":       "hardware:\n  backend: spi\n",
		"poll interval": "io:\n  poll_interval: 0s\n",
		"broken yaml":   "server: [\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
