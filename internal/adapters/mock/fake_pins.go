package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// PinState is the simulated state of one pin
type PinState struct {
	Mode  domain.Mode
	Pull  domain.Pull
	Level domain.Level

	// Reads counts reads since the last mode change
	Reads int
	// Changed is when the mode or driven level last changed
	Changed time.Time

	PWMActive bool
	Duty      float64
	// Duties records every duty cycle set on the pin, in order
	Duties []float64
}

// InputFunc computes the level an input pin reads.
// It receives a copy of the pin state and is called without the bank lock held.
type InputFunc func(p PinState) domain.Level

// PinBank simulates GPIO hardware for development and tests
// This implements the ports.PinDriver interface
type PinBank struct {
	mu      sync.Mutex
	clock   ports.Clock
	pins    map[domain.Pin]*PinState
	inputs  map[domain.Pin]InputFunc
	failing map[domain.Pin]error
	cleaned bool
}

// NewPinBank creates an empty bank. Pins appear when first configured.
func NewPinBank(clock ports.Clock) *PinBank {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &PinBank{
		clock:   clock,
		pins:    make(map[domain.Pin]*PinState),
		inputs:  make(map[domain.Pin]InputFunc),
		failing: make(map[domain.Pin]error),
	}
}

// SetInput installs a simulated signal on an input pin
func (b *PinBank) SetInput(pin domain.Pin, fn InputFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[pin] = fn
}

// SetLevel forces the level an input pin reads when it has no InputFunc
func (b *PinBank) SetLevel(pin domain.Pin, level domain.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pin(pin)
	p.Level = level
	p.Changed = b.clock.Now()
}

// FailPin makes every later operation on pin return err
func (b *PinBank) FailPin(pin domain.Pin, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[pin] = err
}

// State returns a copy of the pin's state
func (b *PinBank) State(pin domain.Pin) PinState {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[pin]
	if !ok {
		return PinState{}
	}
	cp := *p
	cp.Duties = append([]float64(nil), p.Duties...)
	return cp
}

// Cleaned reports whether Cleanup has run
func (b *PinBank) Cleaned() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleaned
}

// pin returns the state for pin, creating it. Caller holds mu.
func (b *PinBank) pin(pin domain.Pin) *PinState {
	p, ok := b.pins[pin]
	if !ok {
		p = &PinState{}
		b.pins[pin] = p
	}
	return p
}

func (b *PinBank) SetMode(pin domain.Pin, mode domain.Mode, pull domain.Pull) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failing[pin]; err != nil {
		return fmt.Errorf("set mode %s: %w", pin, err)
	}

	p := b.pin(pin)
	p.Mode = mode
	p.Pull = pull
	p.Reads = 0
	p.Changed = b.clock.Now()
	switch {
	case mode == domain.ModeOutput:
		p.Level = domain.Low
	case pull == domain.PullUp:
		p.Level = domain.High
	}
	b.cleaned = false
	return nil
}

func (b *PinBank) Read(pin domain.Pin) (domain.Level, error) {
	b.mu.Lock()
	if err := b.failing[pin]; err != nil {
		b.mu.Unlock()
		return domain.Low, fmt.Errorf("read %s: %w", pin, err)
	}
	p, ok := b.pins[pin]
	if !ok {
		b.mu.Unlock()
		return domain.Low, fmt.Errorf("read %s: %w", pin, domain.ErrUnknownPin)
	}
	snapshot := *p
	p.Reads++
	fn := b.inputs[pin]
	b.mu.Unlock()

	if fn != nil && snapshot.Mode == domain.ModeInput {
		return fn(snapshot), nil
	}
	return snapshot.Level, nil
}

func (b *PinBank) Write(pin domain.Pin, level domain.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failing[pin]; err != nil {
		return fmt.Errorf("write %s: %w", pin, err)
	}
	p, ok := b.pins[pin]
	if !ok || p.Mode != domain.ModeOutput {
		return fmt.Errorf("write %s: not configured as output: %w", pin, domain.ErrUnknownPin)
	}
	if p.Level != level {
		p.Level = level
		p.Changed = b.clock.Now()
	}
	return nil
}

func (b *PinBank) StartPWM(pin domain.Pin, frequencyHz int) (ports.PWM, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failing[pin]; err != nil {
		return nil, fmt.Errorf("start pwm %s: %w", pin, err)
	}
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("start pwm %s: invalid frequency %d", pin, frequencyHz)
	}
	p := b.pin(pin)
	p.Mode = domain.ModeOutput
	p.PWMActive = true
	p.Duty = 0
	p.Duties = append(p.Duties, 0)
	return &pwm{bank: b, pin: pin}, nil
}

// Cleanup returns every pin to a floating input
func (b *PinBank) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pins {
		p.Mode = domain.ModeInput
		p.Pull = domain.PullNone
		p.Level = domain.Low
		p.PWMActive = false
		p.Duty = 0
	}
	b.cleaned = true
	return nil
}

type pwm struct {
	bank *PinBank
	pin  domain.Pin
}

func (w *pwm) SetDutyCycle(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %.1f out of range", percent)
	}
	w.bank.mu.Lock()
	defer w.bank.mu.Unlock()

	p := w.bank.pin(w.pin)
	if !p.PWMActive {
		return fmt.Errorf("set duty %s: pwm stopped", w.pin)
	}
	p.Duty = percent
	p.Duties = append(p.Duties, percent)
	if percent > 0 {
		p.Level = domain.High
	}
	return nil
}

func (w *pwm) Stop() error {
	w.bank.mu.Lock()
	defer w.bank.mu.Unlock()

	p := w.bank.pin(w.pin)
	p.PWMActive = false
	p.Duty = 0
	p.Level = domain.Low
	return nil
}
