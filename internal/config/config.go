// Package config loads controller settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/motor"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/sensors"
)

// Pin drivers
const (
	DriverMock   = "mock"
	DriverPeriph = "periph"
)

// ButtonConfig controls how the power button is sampled
type ButtonConfig struct {
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
}

// MotorConfig selects the motor variant and its fixed speed
type MotorConfig struct {
	Enabled bool `yaml:"enabled"`
	// Speed is asked for on the console when nil
	Speed        *int `yaml:"speed"`
	motor.Config `yaml:",inline"`
}

// TelemetryConfig enables the read-only gRPC endpoint when Addr is set
type TelemetryConfig struct {
	Addr    string `yaml:"addr"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	TLSCA   string `yaml:"tls_ca"`
}

// Config holds application configuration
type Config struct {
	PinDriver       string        `yaml:"pin_driver"` // "mock" | "periph"
	Pins            domain.PinMap `yaml:"pins"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	LoopInterval    time.Duration `yaml:"loop_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	Button    ButtonConfig              `yaml:"button"`
	Light     sensors.LightSensorConfig `yaml:"light_sensor"`
	Ranger    sensors.RangerConfig      `yaml:"ranger"`
	Breaker   sensors.BreakerConfig     `yaml:"breaker"`
	Motor     MotorConfig               `yaml:"motor"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
}

// Defaults returns the reference configuration
func Defaults() *Config {
	return &Config{
		PinDriver:       DriverMock,
		Pins:            domain.DefaultPinMap(),
		PollInterval:    100 * time.Millisecond,
		LoopInterval:    100 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
		LogLevel:        "info",
		Button: ButtonConfig{
			Poll:     5 * time.Millisecond,
			Debounce: 50 * time.Millisecond,
		},
		Light: sensors.LightSensorConfig{
			Discharge: 100 * time.Millisecond,
			MaxCount:  domain.LuminosityScale,
		},
		Ranger: sensors.RangerConfig{
			Settle:      500 * time.Millisecond,
			TriggerHold: 10 * time.Microsecond,
			EchoTimeout: 100 * time.Millisecond,
		},
		Breaker: sensors.BreakerConfig{
			MaxFailures: 5,
			Timeout:     2 * time.Second,
		},
		Motor: MotorConfig{
			Config: motor.Config{
				FrequencyHz: 1000,
				Poll:        100 * time.Millisecond,
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE if any, and environment overrides, then validates it.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML file at path. A missing file is not an error.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return nil
}

// applyEnv reads overrides from environment variables
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PIN_DRIVER"); v != "" {
		c.PinDriver = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("TELEMETRY_ADDR"); v != "" {
		c.Telemetry.Addr = v
	}
	if v := getenv("TLS_CERT"); v != "" {
		c.Telemetry.TLSCert = v
	}
	if v := getenv("TLS_KEY"); v != "" {
		c.Telemetry.TLSKey = v
	}
	if v := getenv("TLS_CA"); v != "" {
		c.Telemetry.TLSCA = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_INTERVAL", &c.PollInterval},
		{"LOOP_INTERVAL", &c.LoopInterval},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"BUTTON_POLL", &c.Button.Poll},
		{"BUTTON_DEBOUNCE", &c.Button.Debounce},
		{"ECHO_TIMEOUT", &c.Ranger.EchoTimeout},
	}
	for _, d := range durations {
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", domain.ErrInvalidConfig, d.name, v, err)
		}
		*d.dst = parsed
	}

	pins := []struct {
		name string
		dst  *domain.Pin
	}{
		{"PIN_BUTTON", &c.Pins.Button},
		{"PIN_LIGHT_SENSOR", &c.Pins.LightSensor},
		{"PIN_TRIGGER", &c.Pins.Trigger},
		{"PIN_ECHO", &c.Pins.Echo},
		{"PIN_MOTOR_ENABLE", &c.Pins.MotorEnable},
		{"PIN_MOTOR_DIR_A", &c.Pins.MotorDirA},
		{"PIN_MOTOR_DIR_B", &c.Pins.MotorDirB},
	}
	for _, p := range pins {
		v := getenv(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: not a pin number", domain.ErrInvalidConfig, p.name, v)
		}
		*p.dst = domain.Pin(n)
	}

	if v := getenv("MOTOR_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MOTOR_ENABLED=%q: %v", domain.ErrInvalidConfig, v, err)
		}
		c.Motor.Enabled = enabled
	}
	if v := getenv("MOTOR_SPEED"); v != "" {
		speed, err := motor.ParseSpeed(v)
		if err != nil {
			return fmt.Errorf("%w: MOTOR_SPEED: %v", domain.ErrInvalidConfig, err)
		}
		c.Motor.Speed = &speed
	}
	return nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch c.PinDriver {
	case DriverMock, DriverPeriph:
	default:
		return fmt.Errorf("%w: unknown pin driver %q", domain.ErrInvalidConfig, c.PinDriver)
	}

	if err := c.Pins.Validate(c.Motor.Enabled); err != nil {
		return err
	}

	positive := map[string]time.Duration{
		"poll_interval":    c.PollInterval,
		"loop_interval":    c.LoopInterval,
		"shutdown_timeout": c.ShutdownTimeout,
		"button.poll":      c.Button.Poll,
		"button.debounce":  c.Button.Debounce,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", domain.ErrInvalidConfig, name, d)
		}
	}

	if c.Motor.Speed != nil {
		if err := motor.ValidateSpeed(*c.Motor.Speed); err != nil {
			return fmt.Errorf("%w: motor.speed: %v", domain.ErrInvalidConfig, err)
		}
	}

	t := c.Telemetry
	if (t.TLSCert == "") != (t.TLSKey == "") {
		return fmt.Errorf("%w: TLS certificate and key must be set together", domain.ErrInvalidConfig)
	}
	if t.TLSCA != "" && t.TLSCert == "" {
		return fmt.Errorf("%w: TLS CA set without a server certificate", domain.ErrInvalidConfig)
	}
	return nil
}
