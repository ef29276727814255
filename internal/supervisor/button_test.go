package supervisor

import (
	"testing"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/mock"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

func TestButtonWatcher_Observe(t *testing.T) {
	tests := []struct {
		name    string
		levels  []domain.Level
		toggles int
	}{
		{"held high", []domain.Level{domain.High, domain.High, domain.High}, 0},
		{"pressed only", []domain.Level{domain.Low, domain.Low}, 0},
		{"press and release", []domain.Level{domain.Low, domain.High}, 1},
		{"bouncing release", []domain.Level{domain.Low, domain.High, domain.Low, domain.High, domain.Low, domain.High}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			power := domain.NewPowerState()
			b := NewButtonWatcher(mock.NewPinBank(nil), buttonPin, power, time.Millisecond, time.Hour)

			toggles := 0
			for _, l := range tt.levels {
				if b.observe(l) {
					toggles++
				}
			}

			if toggles != tt.toggles {
				t.Errorf("toggles = %d, want %d", toggles, tt.toggles)
			}
			if power.On() != (tt.toggles%2 == 1) {
				t.Errorf("power = %v after %d toggles", power, tt.toggles)
			}
		})
	}
}

func TestButtonWatcher_AcceptsEdgeAfterDebounce(t *testing.T) {
	power := domain.NewPowerState()
	b := NewButtonWatcher(mock.NewPinBank(nil), buttonPin, power, time.Millisecond, 10*time.Millisecond)

	b.observe(domain.Low)
	b.observe(domain.High)
	if !power.On() {
		t.Fatal("first press should turn power on")
	}

	time.Sleep(20 * time.Millisecond)
	b.observe(domain.Low)
	if !b.observe(domain.High) {
		t.Fatal("edge after debounce interval was ignored")
	}
	if power.On() {
		t.Error("second press should turn power off")
	}
}
