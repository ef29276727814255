// Package supervisor ties the worker sessions to the shared power state.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// State is the supervisor's view of the current session
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// WorkerFactory builds a fresh worker set for a new session
type WorkerFactory func() ([]ports.Worker, error)

// Supervisor launches one worker set per power-on session.
// Step is driven from a single goroutine; the accessors are safe from any.
type Supervisor struct {
	power   *domain.PowerState
	factory WorkerFactory
	state   atomic.Int32

	mu       sync.Mutex
	current  *session
	launched int
}

// New creates a supervisor in the idle state
func New(power *domain.PowerState, factory WorkerFactory) *Supervisor {
	return &Supervisor{
		power:   power,
		factory: factory,
	}
}

// State returns the supervisor state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// SessionID returns the ID of the active session, or "" when idle
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.State() != StateActive {
		return ""
	}
	return s.current.id
}

// Launched returns how many sessions have been launched
func (s *Supervisor) Launched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// Handles returns the worker handles of the newest session
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return append([]*Handle(nil), s.current.handles...)
}

// Step reconciles the session with the power state. It launches workers
// when power is on and no session is active, and marks the session idle
// when power is off; the workers then stop on their own. A non-nil error
// is fatal: a launch failed or a session ended with a hardware error.
func (s *Supervisor) Step(ctx context.Context) error {
	if cur := s.session(); cur != nil && cur.finished() {
		if err := s.reap(); err != nil {
			return err
		}
	}

	on := s.power.On()
	switch st := s.State(); {
	case on && st == StateIdle:
		return s.launch(ctx)
	case !on && st == StateActive:
		s.state.Store(int32(StateIdle))
		log.Info().
			Str("session", s.session().id).
			Msg("power off, waiting for workers to stop")
	}
	return nil
}

// Shutdown forces power off, cancels the current session and waits up to
// timeout for its workers to return.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.power.ForceOff()

	cur := s.session()
	if cur == nil {
		s.state.Store(int32(StateIdle))
		return nil
	}

	cur.cancel()
	if !cur.wait(timeout) {
		return fmt.Errorf("session %s: workers still running after %s", cur.id, timeout)
	}
	return s.reap()
}

func (s *Supervisor) session() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) launch(ctx context.Context) error {
	// A worker mid-wait may see power back on before it saw it off, so the
	// previous session is cancelled before the join.
	if prev := s.session(); prev != nil {
		log.Info().Str("session", prev.id).Msg("joining previous session before relaunch")
		prev.cancel()
		prev.wait(0)
		if err := s.reap(); err != nil {
			return err
		}
	}

	s.state.Store(int32(StateLaunching))

	workers, err := s.factory()
	if err != nil {
		s.state.Store(int32(StateIdle))
		return &LaunchError{Worker: "session", Err: err}
	}

	id := newSessionID(time.Now())
	sess, err := launchSession(ctx, id, workers)
	if err != nil {
		s.state.Store(int32(StateIdle))
		log.Error().Err(err).Str("session", id).Msg("failed to launch workers")
		return err
	}

	s.mu.Lock()
	s.current = sess
	s.launched++
	s.mu.Unlock()
	s.state.Store(int32(StateActive))

	log.Info().
		Str("session", id).
		Int("workers", len(workers)).
		Msg("workers launched")
	return nil
}

// reap discards a finished session and returns its error, if any
func (s *Supervisor) reap() error {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	s.state.Store(int32(StateIdle))
	if cur == nil {
		return nil
	}
	if cur.err != nil {
		return fmt.Errorf("session %s: %w", cur.id, cur.err)
	}
	log.Info().Str("session", cur.id).Msg("session ended")
	return nil
}
