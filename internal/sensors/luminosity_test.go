package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/mock"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

const ldrPin domain.Pin = 4

func newTestClock() *mock.Clock {
	return mock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Nanosecond)
}

func TestLightSensor_CountsUntilHigh(t *testing.T) {
	clock := newTestClock()
	bank := mock.NewPinBank(clock)
	bank.SimulateCharge(ldrPin, 500, 0)
	sensor := NewLightSensor(bank, ldrPin, clock, LightSensorConfig{})

	before := clock.Peek()
	count, err := sensor.Measure(context.Background())
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}

	if count != 500 {
		t.Errorf("count = %d, want 500", count)
	}
	if mode := bank.State(ldrPin).Mode; mode != domain.ModeInput {
		t.Errorf("expected pin left in input mode, got %v", mode)
	}
	if elapsed := clock.Peek().Sub(before); elapsed < defaultDischarge {
		t.Errorf("capacitor discharged for %v, want at least %v", elapsed, defaultDischarge)
	}
}

func TestLightSensor_RepeatedMeasurementsRecharge(t *testing.T) {
	clock := newTestClock()
	bank := mock.NewPinBank(clock)
	bank.SimulateCharge(ldrPin, 42, 0)
	sensor := NewLightSensor(bank, ldrPin, clock, LightSensorConfig{})

	for i := 0; i < 3; i++ {
		count, err := sensor.Measure(context.Background())
		if err != nil {
			t.Fatalf("measurement %d failed: %v", i, err)
		}
		if count != 42 {
			t.Errorf("measurement %d: count = %d, want 42", i, count)
		}
	}
}

func TestLightSensor_ChargeTimeout(t *testing.T) {
	clock := newTestClock()
	bank := mock.NewPinBank(clock)
	bank.SetInput(ldrPin, func(mock.PinState) domain.Level { return domain.Low })
	sensor := NewLightSensor(bank, ldrPin, clock, LightSensorConfig{MaxCount: 1000})

	count, err := sensor.Measure(context.Background())

	if !errors.Is(err, domain.ErrChargeTimeout) {
		t.Fatalf("expected ErrChargeTimeout, got %v", err)
	}
	if !domain.IsTimingTimeout(err) {
		t.Error("expected a timing timeout")
	}
	if count != 1000 {
		t.Errorf("count = %d, want 1000", count)
	}
}

func TestLightSensor_CancelledDuringCount(t *testing.T) {
	clock := newTestClock()
	bank := mock.NewPinBank(clock)
	bank.SetInput(ldrPin, func(mock.PinState) domain.Level { return domain.Low })
	sensor := NewLightSensor(bank, ldrPin, clock, LightSensorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sensor.Measure(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLightSensor_HardwareFailure(t *testing.T) {
	bank := mock.NewPinBank(newTestClock())
	fault := errors.New("bus fault")
	bank.FailPin(ldrPin, fault)
	sensor := NewLightSensor(bank, ldrPin, newTestClock(), LightSensorConfig{})

	_, err := sensor.Measure(context.Background())

	if !errors.Is(err, fault) {
		t.Fatalf("expected %v, got %v", fault, err)
	}
	if domain.IsTimingTimeout(err) {
		t.Error("hardware failure must not look like a timeout")
	}
}
