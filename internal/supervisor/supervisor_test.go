package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// counters are shared by every fakeWorker built by one factory
type counters struct {
	active    atomic.Int32
	maxActive atomic.Int32
	runs      atomic.Int32
}

type fakeWorker struct {
	name     string
	power    *domain.PowerState
	startErr error
	runErr   error
	// ignorePower keeps Run going until ctx is cancelled
	ignorePower bool
	c           *counters
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Start(ctx context.Context) error { return w.startErr }

func (w *fakeWorker) Run(ctx context.Context) error {
	n := w.c.active.Add(1)
	defer w.c.active.Add(-1)
	w.c.runs.Add(1)
	for {
		m := w.c.maxActive.Load()
		if n <= m || w.c.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if w.runErr != nil {
		return w.runErr
	}
	for w.ignorePower || w.power.On() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func factoryOf(calls *atomic.Int32, build func() []ports.Worker) WorkerFactory {
	return func() ([]ports.Worker, error) {
		calls.Add(1)
		return build(), nil
	}
}

// eventually polls cond until it holds or a second has passed
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSupervisor_NoLaunchWhilePowerOff(t *testing.T) {
	power := domain.NewPowerState()
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker { return nil }))

	for i := 0; i < 5; i++ {
		if err := sup.Step(context.Background()); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("factory called %d times while power off", n)
	}
	if sup.State() != StateIdle {
		t.Errorf("state = %v, want idle", sup.State())
	}
	if id := sup.SessionID(); id != "" {
		t.Errorf("expected no session id, got %q", id)
	}
}

func TestSupervisor_LaunchesOncePerPowerOn(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{
			&fakeWorker{name: "a", power: power, c: c},
			&fakeWorker{name: "b", power: power, c: c},
		}
	}))
	power.Toggle()

	for i := 0; i < 5; i++ {
		if err := sup.Step(context.Background()); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
	if n := sup.Launched(); n != 1 {
		t.Errorf("launched = %d, want 1", n)
	}
	if sup.State() != StateActive {
		t.Errorf("state = %v, want active", sup.State())
	}
	if sup.SessionID() == "" {
		t.Error("expected a session id")
	}

	handles := sup.Handles()
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}
	for _, h := range handles {
		if h.State() != HandleRunning {
			t.Errorf("%s: state = %v, want running", h.Name(), h.State())
		}
	}

	if err := sup.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSupervisor_SessionsDoNotOverlap(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "a", power: power, c: c}}
	}))
	ctx := context.Background()

	step := func() {
		t.Helper()
		if err := sup.Step(ctx); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	power.Toggle()
	step()
	first := sup.SessionID()

	power.Toggle()
	step()
	if sup.State() != StateIdle {
		t.Errorf("state = %v after power off, want idle", sup.State())
	}

	power.Toggle()
	step()
	second := sup.SessionID()

	if n := sup.Launched(); n != 2 {
		t.Errorf("launched = %d, want 2", n)
	}
	if first == second {
		t.Errorf("session id reused: %s", first)
	}
	if n := c.maxActive.Load(); n != 1 {
		t.Errorf("sessions overlapped: %d workers active at once", n)
	}

	if err := sup.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if n := c.runs.Load(); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
}

func TestSupervisor_RelaunchAfterFlicker(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "a", power: power, c: c}}
	}))
	ctx := context.Background()

	power.Toggle()
	if err := sup.Step(ctx); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// Off and back on between two polls
	power.Toggle()
	eventually(t, "workers to exit", func() bool { return c.active.Load() == 0 })
	power.Toggle()

	var err error
	eventually(t, "relaunch", func() bool {
		err = sup.Step(ctx)
		return err != nil || sup.Launched() == 2
	})
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if sup.State() != StateActive {
		t.Errorf("state = %v, want active", sup.State())
	}

	if err := sup.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSupervisor_LaunchFailureAbortsBatch(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	fault := errors.New("pin busy")
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{
			&fakeWorker{name: "luminosity", power: power, c: c, ignorePower: true},
			&fakeWorker{name: "distance", power: power, c: c, startErr: fault},
			&fakeWorker{name: "motor", power: power, c: c},
		}
	}))
	power.Toggle()

	err := sup.Step(context.Background())
	if !errors.Is(err, domain.ErrWorkerLaunch) {
		t.Fatalf("expected ErrWorkerLaunch, got %v", err)
	}
	if !errors.Is(err, fault) {
		t.Errorf("expected cause to be kept, got %v", err)
	}

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected *LaunchError, got %T", err)
	}
	if launchErr.Worker != "distance" {
		t.Errorf("failed worker = %q, want distance", launchErr.Worker)
	}

	if n := c.active.Load(); n != 0 {
		t.Errorf("started workers were not joined: %d active", n)
	}
	if n := c.runs.Load(); n != 1 {
		t.Errorf("runs = %d, workers after the failure must not run", n)
	}
	if sup.State() != StateIdle {
		t.Errorf("state = %v, want idle", sup.State())
	}
	if n := sup.Launched(); n != 0 {
		t.Errorf("launched = %d, want 0", n)
	}
}

func TestSupervisor_FactoryFailure(t *testing.T) {
	power := domain.NewPowerState()
	fault := errors.New("no ranger")
	sup := New(power, func() ([]ports.Worker, error) { return nil, fault })
	power.Toggle()

	err := sup.Step(context.Background())
	if !errors.Is(err, domain.ErrWorkerLaunch) || !errors.Is(err, fault) {
		t.Errorf("expected launch error wrapping %v, got %v", fault, err)
	}
}

func TestSupervisor_WorkerErrorIsFatal(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	fault := errors.New("echo line shorted")
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{
			&fakeWorker{name: "distance", power: power, c: c, runErr: fault},
			&fakeWorker{name: "motor", power: power, c: c},
		}
	}))
	power.Toggle()
	ctx := context.Background()
	if err := sup.Step(ctx); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	var err error
	eventually(t, "worker failure", func() bool {
		err = sup.Step(ctx)
		return err != nil
	})

	if !errors.Is(err, fault) {
		t.Errorf("expected %v, got %v", fault, err)
	}
	if n := c.active.Load(); n != 0 {
		t.Errorf("sibling workers must be cancelled, %d active", n)
	}
}

func TestSupervisor_ShutdownCancelsAndJoins(t *testing.T) {
	power := domain.NewPowerState()
	c := &counters{}
	var calls atomic.Int32
	sup := New(power, factoryOf(&calls, func() []ports.Worker {
		return []ports.Worker{&fakeWorker{name: "a", power: power, c: c, ignorePower: true}}
	}))
	power.Toggle()
	if err := sup.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	handles := sup.Handles()

	if err := sup.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if power.On() {
		t.Error("expected power forced off")
	}
	if n := c.active.Load(); n != 0 {
		t.Errorf("%d workers still active", n)
	}
	if sup.State() != StateIdle {
		t.Errorf("state = %v, want idle", sup.State())
	}
	if len(handles) != 1 {
		t.Fatalf("expected 1 handle, got %d", len(handles))
	}
	if handles[0].State() != HandleStopped {
		t.Errorf("handle state = %v, want stopped", handles[0].State())
	}
}

func TestSupervisor_ShutdownWhenIdle(t *testing.T) {
	sup := New(domain.NewPowerState(), func() ([]ports.Worker, error) { return nil, nil })
	if err := sup.Shutdown(time.Second); err != nil {
		t.Errorf("first Shutdown failed: %v", err)
	}
	if err := sup.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	now := time.Now()
	a := newSessionID(now)
	b := newSessionID(now.Add(time.Millisecond))
	if len(a) != 26 {
		t.Errorf("expected a 26 character ULID, got %q", a)
	}
	if a == b {
		t.Errorf("duplicate session id %s", a)
	}
}

func TestNewSessionID_OrderedWithinMillisecond(t *testing.T) {
	now := time.Now()
	prev := newSessionID(now)
	for i := 0; i < 100; i++ {
		id := newSessionID(now)
		if id <= prev {
			t.Fatalf("session ids out of order: %s after %s", id, prev)
		}
		prev = id
	}
}
