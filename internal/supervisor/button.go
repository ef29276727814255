package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// ButtonWatcher toggles power on each debounced rising edge of the button
type ButtonWatcher struct {
	pins    ports.PinDriver
	pin     domain.Pin
	power   *domain.PowerState
	poll    time.Duration
	limiter *rate.Limiter

	last domain.Level
}

// NewButtonWatcher creates a watcher that accepts at most one edge per debounce
func NewButtonWatcher(pins ports.PinDriver, pin domain.Pin, power *domain.PowerState, poll, debounce time.Duration) *ButtonWatcher {
	return &ButtonWatcher{
		pins:    pins,
		pin:     pin,
		power:   power,
		poll:    poll,
		limiter: rate.NewLimiter(rate.Every(debounce), 1),
		last:    domain.High,
	}
}

// Run polls the button until ctx is cancelled. A read error is returned.
func (b *ButtonWatcher) Run(ctx context.Context) error {
	if err := b.pins.SetMode(b.pin, domain.ModeInput, domain.PullUp); err != nil {
		return fmt.Errorf("configure button: %w", err)
	}

	level, err := b.pins.Read(b.pin)
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	b.last = level

	log.Info().
		Str("pin", b.pin.String()).
		Dur("poll", b.poll).
		Msg("watching power button")

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			level, err := b.pins.Read(b.pin)
			if err != nil {
				return fmt.Errorf("read button: %w", err)
			}
			b.observe(level)
		}
	}
}

// observe feeds one sampled level and reports whether power was toggled
func (b *ButtonWatcher) observe(level domain.Level) bool {
	rising := b.last == domain.Low && level == domain.High
	b.last = level
	if !rising || !b.limiter.Allow() {
		return false
	}

	if b.power.Toggle() {
		log.Info().Msg("vehicle power is on")
	} else {
		log.Info().Msg("vehicle power is off")
	}
	return true
}
