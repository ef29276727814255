package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

const (
	defaultSettle      = 500 * time.Millisecond
	defaultTriggerHold = 10 * time.Microsecond
	defaultEchoTimeout = 100 * time.Millisecond
)

// RangerConfig tunes the echo protocol. Zero values select the defaults.
type RangerConfig struct {
	Settle      time.Duration `yaml:"settle"`
	TriggerHold time.Duration `yaml:"trigger_hold"`
	EchoTimeout time.Duration `yaml:"echo_timeout"`
}

// Ranger measures distance with an HC-SR04 style ultrasonic module by
// timing the width of the echo pulse.
type Ranger struct {
	pins        ports.PinDriver
	trigger     domain.Pin
	echo        domain.Pin
	clock       ports.Clock
	settle      time.Duration
	triggerHold time.Duration
	echoTimeout time.Duration
}

// NewRanger creates a ranger on the given trigger and echo pins
func NewRanger(pins ports.PinDriver, trigger, echo domain.Pin, clock ports.Clock, cfg RangerConfig) *Ranger {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.TriggerHold <= 0 {
		cfg.TriggerHold = defaultTriggerHold
	}
	if cfg.EchoTimeout <= 0 {
		cfg.EchoTimeout = defaultEchoTimeout
	}
	return &Ranger{
		pins:        pins,
		trigger:     trigger,
		echo:        echo,
		clock:       clock,
		settle:      cfg.Settle,
		triggerHold: cfg.TriggerHold,
		echoTimeout: cfg.EchoTimeout,
	}
}

// Measure returns the distance to the nearest obstacle in centimetres
func (r *Ranger) Measure(ctx context.Context) (float64, error) {
	pulse, err := r.MeasurePulse(ctx)
	if err != nil {
		return 0, err
	}
	return domain.PulseToCentimeters(pulse), nil
}

// MeasurePulse fires the trigger and returns the echo pulse width.
//
// start is the last time sampled while echo was still low and end the last
// time sampled while it was high. Both edge waits spin without yielding and
// are bounded by the echo timeout.
func (r *Ranger) MeasurePulse(ctx context.Context) (time.Duration, error) {
	if err := r.pins.Write(r.trigger, domain.Low); err != nil {
		return 0, fmt.Errorf("settle trigger: %w", err)
	}
	r.clock.Sleep(r.settle)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	if err := r.pins.Write(r.trigger, domain.High); err != nil {
		return 0, fmt.Errorf("raise trigger: %w", err)
	}
	r.clock.Sleep(r.triggerHold)
	if err := r.pins.Write(r.trigger, domain.Low); err != nil {
		return 0, fmt.Errorf("drop trigger: %w", err)
	}

	begin := r.clock.Now()
	start := begin
	for {
		level, err := r.pins.Read(r.echo)
		if err != nil {
			return 0, fmt.Errorf("read echo: %w", err)
		}
		if level == domain.High {
			break
		}
		start = r.clock.Now()
		if start.Sub(begin) > r.echoTimeout {
			return 0, fmt.Errorf("%w within %s", domain.ErrNoEcho, r.echoTimeout)
		}
	}

	end := r.clock.Now()
	for {
		level, err := r.pins.Read(r.echo)
		if err != nil {
			return 0, fmt.Errorf("read echo: %w", err)
		}
		if level == domain.Low {
			break
		}
		end = r.clock.Now()
		if end.Sub(start) > r.echoTimeout {
			return 0, fmt.Errorf("%w: high for over %s", domain.ErrEchoStuck, r.echoTimeout)
		}
	}

	return end.Sub(start), nil
}
