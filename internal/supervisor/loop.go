package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Default control loop timings
const (
	DefaultLoopInterval    = 100 * time.Millisecond
	DefaultShutdownTimeout = 2 * time.Second
)

// Loop drives the supervisor from the power state until interrupted
type Loop struct {
	sup             *Supervisor
	button          *ButtonWatcher
	interval        time.Duration
	shutdownTimeout time.Duration
}

// NewLoop creates a control loop. button may be nil when power is toggled
// some other way.
func NewLoop(sup *Supervisor, button *ButtonWatcher, interval, shutdownTimeout time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Loop{
		sup:             sup,
		button:          button,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run polls until ctx is cancelled, then shuts the session down and returns
// nil. A launch failure, a failed session or a button error is returned
// after the same shutdown.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	// The button is stopped before every shutdown; a late edge would turn
	// power back on mid-teardown.
	stopButton := func() {
		cancel()
		wg.Wait()
	}

	buttonErr := make(chan error, 1)
	if l.button != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.button.Run(ctx); err != nil {
				buttonErr <- err
			}
		}()
	}

	log.Info().
		Dur("interval", l.interval).
		Msg("control loop started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			stopButton()
			l.shutdown()
			return nil

		case err := <-buttonErr:
			log.Error().Err(err).Msg("power button failed")
			stopButton()
			l.shutdown()
			return err

		case <-ticker.C:
			if err := l.sup.Step(ctx); err != nil {
				log.Error().Err(err).Msg("supervisor failed")
				stopButton()
				l.shutdown()
				return err
			}
		}
	}
}

func (l *Loop) shutdown() {
	if err := l.sup.Shutdown(l.shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("session did not stop cleanly")
	}
}
