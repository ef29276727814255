package mock

import (
	"math/rand"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// SimulateCharge makes pin behave like an LDR/capacitor node: after each
// switch to input it reads low for baseCount +/- variation reads, then high.
func (b *PinBank) SimulateCharge(pin domain.Pin, baseCount, variation int) {
	target := -1
	b.SetInput(pin, func(p PinState) domain.Level {
		if p.Reads == 0 || target < 0 {
			target = baseCount
			if variation > 0 {
				target += rand.Intn(2*variation+1) - variation
			}
			if target < 0 {
				target = 0
			}
		}
		if p.Reads >= target {
			return domain.High
		}
		return domain.Low
	})
}

// SimulateEcho makes echo answer trigger like an HC-SR04: after the trigger
// falls the echo rises after delay and stays high for the time of flight of
// a target at cm +/- variation centimetres.
func (b *PinBank) SimulateEcho(trigger, echo domain.Pin, delay time.Duration, cm, variation float64) {
	var pulse time.Time
	var width time.Duration
	b.SetInput(echo, func(_ PinState) domain.Level {
		t := b.State(trigger)
		if t.Level == domain.High || t.Changed.IsZero() {
			return domain.Low
		}
		if !t.Changed.Equal(pulse) {
			pulse = t.Changed
			dist := cm
			if variation > 0 {
				dist += (rand.Float64() - 0.5) * 2 * variation
			}
			width = time.Duration(dist / domain.SoundFactor * float64(time.Second))
		}

		rise := pulse.Add(delay)
		now := b.clock.Now()
		if !now.Before(rise) && now.Before(rise.Add(width)) {
			return domain.High
		}
		return domain.Low
	})
}

// SilenceEcho makes echo never rise, as if nothing is in range
func (b *PinBank) SilenceEcho(echo domain.Pin) {
	b.SetInput(echo, func(_ PinState) domain.Level { return domain.Low })
}

// PressButton simulates one press and release of a pulled-up button.
// The release produces the rising edge.
func (b *PinBank) PressButton(pin domain.Pin, hold time.Duration) {
	b.SetLevel(pin, domain.Low)
	time.AfterFunc(hold, func() {
		b.SetLevel(pin, domain.High)
	})
}
