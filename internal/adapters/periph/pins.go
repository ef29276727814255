// Package periph drives real GPIO through periph.io.
// Pins are addressed by BCM number as GPIO<n>.
package periph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// Pins implements ports.PinDriver on the host's GPIO controller
type Pins struct {
	mu   sync.Mutex
	pins map[domain.Pin]gpio.PinIO // cached pin handles
}

// NewPins initializes periph.io host drivers
func NewPins() (*Pins, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	log.Info().
		Int("drivers_loaded", len(state.Loaded)).
		Int("drivers_failed", len(state.Failed)).
		Msg("periph host initialized")
	return &Pins{
		pins: make(map[domain.Pin]gpio.PinIO),
	}, nil
}

// resolve looks up a GPIO pin by number, caching the result
func (d *Pins) resolve(pin domain.Pin) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pins[pin]; ok {
		return p, nil
	}

	p := gpioreg.ByName(pin.String())
	if p == nil {
		return nil, fmt.Errorf("%s: %w", pin, domain.ErrUnknownPin)
	}
	d.pins[pin] = p
	return p, nil
}

func (d *Pins) SetMode(pin domain.Pin, mode domain.Mode, pull domain.Pull) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}

	if mode == domain.ModeOutput {
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("set %s to output: %w", pin, err)
		}
		return nil
	}

	gpull := gpio.Float
	if pull == domain.PullUp {
		gpull = gpio.PullUp
	}
	if err := p.In(gpull, gpio.NoEdge); err != nil {
		return fmt.Errorf("set %s to input: %w", pin, err)
	}
	return nil
}

// Read samples the pin level. It does not reconfigure the pin, so it is
// cheap enough for the sensor timing loops.
func (d *Pins) Read(pin domain.Pin) (domain.Level, error) {
	p, err := d.resolve(pin)
	if err != nil {
		return domain.Low, err
	}
	return domain.Level(p.Read() == gpio.High), nil
}

func (d *Pins) Write(pin domain.Pin, level domain.Level) error {
	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("write %s: %w", pin, err)
	}
	return nil
}

func (d *Pins) StartPWM(pin domain.Pin, frequencyHz int) (ports.PWM, error) {
	p, err := d.resolve(pin)
	if err != nil {
		return nil, err
	}
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("start pwm %s: invalid frequency %d", pin, frequencyHz)
	}
	w := &pwm{
		pin:  p,
		name: pin.String(),
		freq: physic.Frequency(frequencyHz) * physic.Hertz,
	}
	if err := w.SetDutyCycle(0); err != nil {
		return nil, err
	}
	return w, nil
}

// Cleanup returns every pin touched by this driver to a floating input
func (d *Pins) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin, p := range d.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", pin, err))
		}
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", pin, err))
		}
	}
	log.Info().Int("pins", len(d.pins)).Msg("gpio released")
	return errors.Join(errs...)
}

type pwm struct {
	pin  gpio.PinIO
	name string
	freq physic.Frequency
}

// SetDutyCycle converts percent (0-100) to gpio.Duty (0-DutyMax)
func (w *pwm) SetDutyCycle(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %.1f out of range", percent)
	}
	duty := gpio.Duty(percent / 100 * float64(gpio.DutyMax))
	if err := w.pin.PWM(duty, w.freq); err != nil {
		return fmt.Errorf("set duty %s: %w", w.name, err)
	}
	return nil
}

func (w *pwm) Stop() error {
	if err := w.pin.Halt(); err != nil {
		return fmt.Errorf("stop pwm %s: %w", w.name, err)
	}
	if err := w.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("stop pwm %s: %w", w.name, err)
	}
	return nil
}
