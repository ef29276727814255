package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// HandleState is the lifecycle position of one worker
type HandleState int32

const (
	HandleNotStarted HandleState = iota
	HandleRunning
	HandleStopped
)

func (s HandleState) String() string {
	switch s {
	case HandleNotStarted:
		return "not-started"
	case HandleRunning:
		return "running"
	case HandleStopped:
		return "stopped"
	default:
		return fmt.Sprintf("HandleState(%d)", int32(s))
	}
}

// Handle tracks one worker of a session
type Handle struct {
	name  string
	state atomic.Int32
}

func (h *Handle) Name() string        { return h.name }
func (h *Handle) State() HandleState { return HandleState(h.state.Load()) }

// LaunchError reports the worker that failed to start.
// It matches domain.ErrWorkerLaunch and the underlying cause with errors.Is.
type LaunchError struct {
	Worker string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Worker, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	return []error{domain.ErrWorkerLaunch, e.Err}
}

// session is one generation of workers, bounded by a power-on interval
type session struct {
	id      string
	handles []*Handle
	cancel  context.CancelFunc
	done    chan struct{}
	err     error // valid once done is closed
}

// launchSession starts every worker in order. Start runs synchronously so
// a failure is seen before the next worker is touched; on failure the
// workers already running are cancelled and joined before returning.
func launchSession(parent context.Context, id string, workers []ports.Worker) (*session, error) {
	ctx, cancel := context.WithCancel(ports.WithSession(parent, id))
	g, gctx := errgroup.WithContext(ctx)

	s := &session{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, w := range workers {
		s.handles = append(s.handles, &Handle{name: w.Name()})
	}

	for i, w := range workers {
		w := w
		if err := w.Start(gctx); err != nil {
			cancel()
			_ = g.Wait()
			close(s.done)
			return s, &LaunchError{Worker: w.Name(), Err: err}
		}

		h := s.handles[i]
		h.state.Store(int32(HandleRunning))
		g.Go(func() error {
			defer h.state.Store(int32(HandleStopped))
			return w.Run(gctx)
		})
	}

	go func() {
		s.err = g.Wait()
		cancel()
		close(s.done)
	}()
	return s, nil
}

// finished reports whether every worker has returned
func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// wait blocks until every worker has returned or timeout elapses.
// A zero timeout waits indefinitely.
func (s *session) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

// Session IDs share one monotonic source so IDs minted in the same
// millisecond still sort in launch order.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newSessionID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
