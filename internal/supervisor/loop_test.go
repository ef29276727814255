package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/mock"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

const buttonPin domain.Pin = 16

func runLoop(l *Loop, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func waitLoop(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("control loop did not return")
		return nil
	}
}

func TestLoop_InterruptShutsDown(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "a", power: power, c: c, ignorePower: true}}
	}))
	power.Toggle()

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(NewLoop(sup, nil, time.Millisecond, time.Second), ctx)

	eventually(t, "session start", func() bool { return c.active.Load() == 1 })
	cancel()

	if err := waitLoop(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if power.On() {
		t.Error("expected power off after interrupt")
	}
	if n := c.active.Load(); n != 0 {
		t.Errorf("%d workers still active", n)
	}
	if n := sup.Launched(); n != 1 {
		t.Errorf("launched = %d, want 1", n)
	}
}

func TestLoop_LaunchFailureEndsLoop(t *testing.T) {
	power := domain.NewPowerState()
	fault := errors.New("pin busy")
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "motor", power: power, c: c, startErr: fault}}
	}))
	power.Toggle()

	err := waitLoop(t, runLoop(NewLoop(sup, nil, time.Millisecond, time.Second), context.Background()))

	if !errors.Is(err, domain.ErrWorkerLaunch) || !errors.Is(err, fault) {
		t.Errorf("expected launch error wrapping %v, got %v", fault, err)
	}
	if power.On() {
		t.Error("expected power off after launch failure")
	}
	if n := c.runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}

func TestLoop_ButtonTogglesSessions(t *testing.T) {
	bank := mock.NewPinBank(nil)
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "a", power: power, c: c}}
	}))
	button := NewButtonWatcher(bank, buttonPin, power, time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(NewLoop(sup, button, time.Millisecond, time.Second), ctx)

	eventually(t, "button pull-up", func() bool {
		return bank.State(buttonPin).Pull == domain.PullUp
	})

	bank.PressButton(buttonPin, 10*time.Millisecond)
	eventually(t, "session start", func() bool { return c.active.Load() == 1 })
	if !power.On() {
		t.Error("expected power on after first press")
	}

	time.Sleep(30 * time.Millisecond)
	bank.PressButton(buttonPin, 10*time.Millisecond)
	eventually(t, "session stop", func() bool { return c.active.Load() == 0 })
	if power.On() {
		t.Error("expected power off after second press")
	}

	cancel()
	if err := waitLoop(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if n := sup.Launched(); n != 1 {
		t.Errorf("launched = %d, want 1", n)
	}
}

func TestLoop_ButtonFailureEndsLoop(t *testing.T) {
	bank := mock.NewPinBank(nil)
	fault := errors.New("gpio chip gone")
	bank.FailPin(buttonPin, fault)
	power := domain.NewPowerState()
	sup := New(power, func() ([]ports.Worker, error) { return nil, nil })
	button := NewButtonWatcher(bank, buttonPin, power, time.Millisecond, time.Millisecond)

	err := waitLoop(t, runLoop(NewLoop(sup, button, time.Millisecond, time.Second), context.Background()))
	if !errors.Is(err, fault) {
		t.Errorf("expected %v, got %v", fault, err)
	}
}

func TestLoop_ChatteringButtonCannotRepowerAfterFailure(t *testing.T) {
	bank := mock.NewPinBank(nil)
	// A release edge on every other read keeps toggling power
	bank.SetInput(buttonPin, func(p mock.PinState) domain.Level {
		if p.Reads%2 == 0 {
			return domain.Low
		}
		return domain.High
	})

	power := domain.NewPowerState()
	fault := errors.New("echo line shorted")
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "distance", power: power, c: c, runErr: fault}}
	}))
	button := NewButtonWatcher(bank, buttonPin, power, time.Millisecond, time.Microsecond)

	err := waitLoop(t, runLoop(NewLoop(sup, button, time.Millisecond, time.Second), context.Background()))
	if !errors.Is(err, fault) {
		t.Fatalf("expected %v, got %v", fault, err)
	}

	reads := bank.State(buttonPin).Reads
	time.Sleep(10 * time.Millisecond)
	if power.On() {
		t.Error("power turned back on during shutdown")
	}
	if got := bank.State(buttonPin).Reads; got != reads {
		t.Errorf("button still polled after the loop returned: %d reads, was %d", got, reads)
	}
}
