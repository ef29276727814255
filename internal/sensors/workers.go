package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
)

// Default ranger breaker settings
const (
	defaultBreakerFailures uint32        = 5
	defaultBreakerTimeout  time.Duration = 2 * time.Second
)

// BreakerConfig configures when repeated echo failures pause ranging
type BreakerConfig struct {
	// MaxFailures is the number of consecutive echo timeouts before ranging pauses
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long ranging stays paused before a trial measurement
	Timeout time.Duration `yaml:"timeout"`
}

// LuminosityWorker reports the light sensor every poll while power is on
type LuminosityWorker struct {
	sensor   *LightSensor
	pins     ports.PinDriver
	power    *domain.PowerState
	reporter ports.Reporter
	interval time.Duration
}

// NewLuminosityWorker creates a worker for one session
func NewLuminosityWorker(sensor *LightSensor, pins ports.PinDriver, power *domain.PowerState, reporter ports.Reporter, interval time.Duration) *LuminosityWorker {
	return &LuminosityWorker{
		sensor:   sensor,
		pins:     pins,
		power:    power,
		reporter: reporter,
		interval: interval,
	}
}

func (w *LuminosityWorker) Name() string { return "luminosity" }

func (w *LuminosityWorker) Start(ctx context.Context) error {
	if err := w.pins.SetMode(w.sensor.Pin(), domain.ModeInput, domain.PullNone); err != nil {
		return fmt.Errorf("configure light sensor: %w", err)
	}
	return nil
}

func (w *LuminosityWorker) Run(ctx context.Context) error {
	return ports.NewSampler(w.Name(), w.power, w.interval, w.sampleOnce).Run(ctx)
}

func (w *LuminosityWorker) sampleOnce(ctx context.Context) error {
	count, err := w.sensor.Measure(ctx)
	if err != nil {
		if domain.IsTimingTimeout(err) {
			log.Warn().Err(err).Str("session", ports.SessionFrom(ctx)).Msg("light sensor reading skipped")
			return nil
		}
		return err
	}

	w.reporter.ReportLuminosity(domain.NewLuminositySample(count, ports.SessionFrom(ctx)))
	return nil
}

// DistanceWorker reports the ranger every poll while power is on.
// Consecutive echo timeouts open a breaker that pauses ranging.
type DistanceWorker struct {
	ranger   *Ranger
	pins     ports.PinDriver
	power    *domain.PowerState
	reporter ports.Reporter
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker[time.Duration]

	// openNoted is set once an open breaker has been reported
	openNoted bool
}

// NewDistanceWorker creates a worker for one session
func NewDistanceWorker(ranger *Ranger, pins ports.PinDriver, power *domain.PowerState, reporter ports.Reporter, interval time.Duration, cfg BreakerConfig) *DistanceWorker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	cb := gobreaker.NewCircuitBreaker[time.Duration](gobreaker.Settings{
		Name:        "ranger",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("ranger breaker state change")
		},
		// Only missing echoes count; hardware errors end the session anyway.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTimingTimeout(err)
		},
	})

	return &DistanceWorker{
		ranger:   ranger,
		pins:     pins,
		power:    power,
		reporter: reporter,
		interval: interval,
		breaker:  cb,
	}
}

func (w *DistanceWorker) Name() string { return "distance" }

func (w *DistanceWorker) Start(ctx context.Context) error {
	if err := w.pins.SetMode(w.ranger.trigger, domain.ModeOutput, domain.PullNone); err != nil {
		return fmt.Errorf("configure trigger: %w", err)
	}
	if err := w.pins.SetMode(w.ranger.echo, domain.ModeInput, domain.PullNone); err != nil {
		return fmt.Errorf("configure echo: %w", err)
	}
	return nil
}

func (w *DistanceWorker) Run(ctx context.Context) error {
	return ports.NewSampler(w.Name(), w.power, w.interval, w.sampleOnce).Run(ctx)
}

func (w *DistanceWorker) sampleOnce(ctx context.Context) error {
	pulse, err := w.breaker.Execute(func() (time.Duration, error) {
		return w.ranger.MeasurePulse(ctx)
	})

	switch {
	case err == nil:
		w.openNoted = false
		w.reporter.ReportDistance(domain.NewDistanceSample(pulse, ports.SessionFrom(ctx)))
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		// Reported once per open period, not on every skipped poll
		if !w.openNoted {
			w.openNoted = true
			w.reporter.ReportDistanceUnavailable(err)
		}
		return nil
	case domain.IsTimingTimeout(err):
		w.openNoted = false
		log.Warn().Err(err).Str("session", ports.SessionFrom(ctx)).Msg("distance reading skipped")
		w.reporter.ReportDistanceUnavailable(err)
		return nil
	default:
		return err
	}
}
