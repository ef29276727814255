package ports

import (
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// PinDriver defines how the controller talks to GPIO hardware
// This is a PORT - adapters (periph, mock) will implement it
type PinDriver interface {
	// SetMode configures a pin as input (with optional pull-up) or output
	SetMode(pin domain.Pin, mode domain.Mode, pull domain.Pull) error

	// Read samples the current level of an input pin.
	// Called from tight timing loops, so implementations must not block.
	Read(pin domain.Pin) (domain.Level, error)

	// Write drives an output pin
	Write(pin domain.Pin, level domain.Level) error

	// StartPWM begins PWM generation on a pin at 0% duty
	StartPWM(pin domain.Pin, frequencyHz int) (PWM, error)

	// Cleanup releases every pin the driver has touched
	Cleanup() error
}

// PWM is a running PWM output
type PWM interface {
	// SetDutyCycle sets the duty cycle in percent, 0 to 100
	SetDutyCycle(percent float64) error

	// Stop halts generation and leaves the pin low
	Stop() error
}
