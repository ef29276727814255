package domain

import (
	"math"
	"strings"
	"time"
)

const (
	// LuminosityScale is the charge count rendered as full brightness
	LuminosityScale = 1000000

	// BarWidth is the width of the rendered luminosity bar
	BarWidth = 40

	// SoundFactor converts an echo pulse width in seconds to centimetres.
	// Half the speed of sound at ~20C, in cm/s.
	SoundFactor = 17150.0
)

// LuminositySample is one capacitor charge count.
// Lower counts mean a faster recharge, which means more light.
type LuminositySample struct {
	Count     int
	Session   string
	Timestamp time.Time
}

// NewLuminositySample stamps a count with the current time
func NewLuminositySample(count int, session string) LuminositySample {
	return LuminositySample{
		Count:     count,
		Session:   session,
		Timestamp: time.Now(),
	}
}

// Normalized maps the count logarithmically onto [0, 1].
// A zero count is treated as 1.
func (s LuminositySample) Normalized() float64 {
	count := s.Count
	if count < 1 {
		count = 1
	}
	n := math.Log10(float64(count)) / math.Log10(LuminosityScale)
	return math.Min(math.Max(n, 0), 1)
}

// Bar renders the sample as a fixed-width bar: '#' for darkness,
// spaces for light.
func (s LuminositySample) Bar() string {
	hashes := int(BarWidth * (1 - s.Normalized()))
	return strings.Repeat("#", hashes) + strings.Repeat(" ", BarWidth-hashes)
}

// DistanceSample is one ranger measurement in centimetres
type DistanceSample struct {
	Centimeters float64
	Pulse       time.Duration
	Session     string
	Timestamp   time.Time
}

// NewDistanceSample converts an echo pulse width into a distance
func NewDistanceSample(pulse time.Duration, session string) DistanceSample {
	return DistanceSample{
		Centimeters: PulseToCentimeters(pulse),
		Pulse:       pulse,
		Session:     session,
		Timestamp:   time.Now(),
	}
}

// PulseToCentimeters converts an echo pulse width to distance
func PulseToCentimeters(pulse time.Duration) float64 {
	return pulse.Seconds() * SoundFactor
}
