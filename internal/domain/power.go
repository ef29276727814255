package domain

import "sync/atomic"

// PowerState is the shared vehicle power flag.
// It is created off and handed by pointer to every goroutine that needs it.
type PowerState struct {
	on atomic.Bool
}

// NewPowerState returns a PowerState that starts off
func NewPowerState() *PowerState {
	return &PowerState{}
}

// On reports whether power is currently on
func (p *PowerState) On() bool {
	return p.on.Load()
}

// Toggle flips the flag and returns the new value
func (p *PowerState) Toggle() bool {
	for {
		old := p.on.Load()
		if p.on.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// ForceOff turns power off. Safe to call any number of times.
func (p *PowerState) ForceOff() {
	p.on.Store(false)
}

// String returns "on" or "off"
func (p *PowerState) String() string {
	if p.On() {
		return "on"
	}
	return "off"
}
