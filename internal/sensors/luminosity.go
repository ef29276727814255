// Package sensors implements the hardware timing protocols of the light
// sensor and the ultrasonic ranger, and the session workers that poll them.
package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

const (
	defaultDischarge = 100 * time.Millisecond
	defaultMaxCount  = domain.LuminosityScale

	// cancelCheckMask sets how often the charge loop looks at ctx
	cancelCheckMask = 0xfff
)

// LightSensorConfig tunes the charge-time protocol.
// Zero values select the defaults.
type LightSensorConfig struct {
	Discharge time.Duration `yaml:"discharge"`
	MaxCount  int           `yaml:"max_count"`
}

// LightSensor measures brightness by timing how long a capacitor takes to
// recharge through a light-dependent resistor on a single pin.
type LightSensor struct {
	pins      ports.PinDriver
	pin       domain.Pin
	clock     ports.Clock
	discharge time.Duration
	maxCount  int
}

// NewLightSensor creates a light sensor on pin
func NewLightSensor(pins ports.PinDriver, pin domain.Pin, clock ports.Clock, cfg LightSensorConfig) *LightSensor {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Discharge <= 0 {
		cfg.Discharge = defaultDischarge
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = defaultMaxCount
	}
	return &LightSensor{
		pins:      pins,
		pin:       pin,
		clock:     clock,
		discharge: cfg.Discharge,
		maxCount:  cfg.MaxCount,
	}
}

// Pin returns the sensor pin
func (s *LightSensor) Pin() domain.Pin { return s.pin }

// Measure discharges the capacitor, then counts reads until the pin goes
// high. Brighter light gives a lower count. The count loop spins without
// yielding; it gives up with ErrChargeTimeout after MaxCount reads.
func (s *LightSensor) Measure(ctx context.Context) (int, error) {
	if err := s.pins.SetMode(s.pin, domain.ModeOutput, domain.PullNone); err != nil {
		return 0, fmt.Errorf("discharge light sensor: %w", err)
	}
	if err := s.pins.Write(s.pin, domain.Low); err != nil {
		return 0, fmt.Errorf("discharge light sensor: %w", err)
	}
	s.clock.Sleep(s.discharge)

	if err := s.pins.SetMode(s.pin, domain.ModeInput, domain.PullNone); err != nil {
		return 0, fmt.Errorf("sense light sensor: %w", err)
	}

	count := 0
	for {
		level, err := s.pins.Read(s.pin)
		if err != nil {
			return count, fmt.Errorf("read light sensor: %w", err)
		}
		if level == domain.High {
			return count, nil
		}

		count++
		if count >= s.maxCount {
			return count, fmt.Errorf("%w: %d reads", domain.ErrChargeTimeout, count)
		}
		if count&cancelCheckMask == 0 && ctx.Err() != nil {
			return count, ctx.Err()
		}
	}
}
