// Package motor drives a DC motor through an H-bridge for the length of one
// power-on session.
package motor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

const (
	defaultFrequencyHz = 1000
	defaultPoll        = 100 * time.Millisecond
)

// State is the lifecycle position of a Controller
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateOff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateOff:
		return "off"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config tunes the PWM output. Zero values select the defaults.
type Config struct {
	FrequencyHz int           `yaml:"frequency_hz"`
	Poll        time.Duration `yaml:"poll"`
}

// Controller runs the motor at a fixed speed while power is on.
// A Controller serves a single session; its stopped state is terminal.
type Controller struct {
	pins      ports.PinDriver
	enable    domain.Pin
	dirA      domain.Pin
	dirB      domain.Pin
	power     *domain.PowerState
	speed     int
	frequency int
	poll      time.Duration
	state     atomic.Int32
}

// NewController creates a motor controller for one session
func NewController(pins ports.PinDriver, pinMap domain.PinMap, power *domain.PowerState, speed int, cfg Config) (*Controller, error) {
	if err := ValidateSpeed(speed); err != nil {
		return nil, err
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = defaultFrequencyHz
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	return &Controller{
		pins:      pins,
		enable:    pinMap.MotorEnable,
		dirA:      pinMap.MotorDirA,
		dirB:      pinMap.MotorDirB,
		power:     power,
		speed:     speed,
		frequency: cfg.FrequencyHz,
		poll:      cfg.Poll,
	}, nil
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) Name() string { return "motor" }

// Start configures the bridge pins as outputs, all low
func (c *Controller) Start(ctx context.Context) error {
	for _, pin := range []domain.Pin{c.enable, c.dirA, c.dirB} {
		if err := c.pins.SetMode(pin, domain.ModeOutput, domain.PullNone); err != nil {
			return fmt.Errorf("configure motor pin %s: %w", pin, err)
		}
	}
	return nil
}

// Run engages the motor and holds it until power turns off or ctx is
// cancelled. The motor is always stopped and its pins de-energized before
// Run returns, whatever the reason for returning.
func (c *Controller) Run(ctx context.Context) (err error) {
	logger := log.With().
		Str("worker", c.Name()).
		Str("session", ports.SessionFrom(ctx)).
		Logger()

	var pwm ports.PWM
	defer func() {
		if stopErr := c.disengage(pwm); stopErr != nil {
			logger.Error().Err(stopErr).Msg("engine stop incomplete")
			err = errors.Join(err, stopErr)
		}
		logger.Info().Msg("engine stopped")
	}()

	if ctx.Err() != nil || !c.power.On() {
		return nil
	}

	pwm, err = c.engage()
	if err != nil {
		return err
	}
	logger.Info().
		Int("speed", c.speed).
		Int("frequency_hz", c.frequency).
		Msg("engine started")

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for c.power.On() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// engage sets the rotation sense and ramps PWM from 0 to the session speed
func (c *Controller) engage() (ports.PWM, error) {
	if err := c.pins.Write(c.dirA, domain.High); err != nil {
		return nil, fmt.Errorf("set direction: %w", err)
	}
	if err := c.pins.Write(c.dirB, domain.Low); err != nil {
		return nil, fmt.Errorf("set direction: %w", err)
	}

	pwm, err := c.pins.StartPWM(c.enable, c.frequency)
	if err != nil {
		return nil, fmt.Errorf("start pwm: %w", err)
	}
	if err := pwm.SetDutyCycle(0); err != nil {
		return pwm, fmt.Errorf("set duty cycle: %w", err)
	}
	if err := pwm.SetDutyCycle(float64(c.speed)); err != nil {
		return pwm, fmt.Errorf("set duty cycle: %w", err)
	}

	c.state.Store(int32(StateRunning))
	return pwm, nil
}

// disengage drops duty to 0, stops PWM and drives every bridge pin low.
// Every step is attempted even if an earlier one fails.
func (c *Controller) disengage(pwm ports.PWM) error {
	c.state.Store(int32(StateStopping))

	var errs []error
	if pwm != nil {
		if err := pwm.SetDutyCycle(0); err != nil {
			errs = append(errs, fmt.Errorf("zero duty cycle: %w", err))
		}
		if err := pwm.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop pwm: %w", err))
		}
	}
	for _, pin := range []domain.Pin{c.enable, c.dirA, c.dirB} {
		if err := c.pins.Write(pin, domain.Low); err != nil {
			errs = append(errs, fmt.Errorf("de-energize %s: %w", pin, err))
		}
	}

	c.state.Store(int32(StateOff))
	return errors.Join(errs...)
}
