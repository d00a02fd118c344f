package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	IO       IOConfig       `mapstructure:"io"`
	Alarms   AlarmsConfig   `mapstructure:"alarms"`
	Hardware HardwareConfig `mapstructure:"hardware"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type IOConfig struct {
	ConfigPath   string        `mapstructure:"config_path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	ADCMaxCode   uint16        `mapstructure:"adc_max_code"`
}

type AlarmsConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type HardwareConfig struct {
	// Backend is "fake" or "gpiocdev".
	Backend  string          `mapstructure:"backend"`
	Chip     string          `mapstructure:"chip"`
	BitDelay time.Duration   `mapstructure:"bit_delay"`
	ADC      SerialADCConfig `mapstructure:"serial_adc"`
}

// SerialADCConfig selects the UART analog bridge. An empty Port disables it.
type SerialADCConfig struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendFake     = "fake"
	BackendGPIOCdev = "gpiocdev"
)

// Load reads the daemon configuration from path. A missing file yields the
// defaults; SNR_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("SNR") // SNR_SERVER_HTTP_PORT etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("io.config_path", "configs/io-config.json")
	v.SetDefault("io.poll_interval", "1s")
	v.SetDefault("io.lock_timeout", "100ms")
	v.SetDefault("io.adc_max_code", 4095)

	v.SetDefault("alarms.check_interval", "5s")

	v.SetDefault("hardware.backend", BackendFake)
	v.SetDefault("hardware.chip", "gpiochip0")
	v.SetDefault("hardware.bit_delay", "1us")
	v.SetDefault("hardware.serial_adc.port", "")
	v.SetDefault("hardware.serial_adc.baud", 115200)
	v.SetDefault("hardware.serial_adc.timeout", "200ms")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "irrigationd")
	v.SetDefault("mqtt.topic_prefix", "irrigation")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	switch c.Hardware.Backend {
	case BackendFake, BackendGPIOCdev:
	default:
		return fmt.Errorf("unknown hardware backend %q", c.Hardware.Backend)
	}
	if c.IO.PollInterval <= 0 {
		return fmt.Errorf("io.poll_interval must be positive, got %s", c.IO.PollInterval)
	}
	if c.Alarms.CheckInterval <= 0 {
		return fmt.Errorf("alarms.check_interval must be positive, got %s", c.Alarms.CheckInterval)
	}
	if c.IO.ADCMaxCode == 0 {
		return fmt.Errorf("io.adc_max_code must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
