package ports

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// SampleFunc takes and reports one reading
type SampleFunc func(ctx context.Context) error

// Sampler handles periodic sensor reading while power is on
type Sampler struct {
	name     string
	power    *domain.PowerState
	interval time.Duration
	sample   SampleFunc
}

// NewSampler creates a new periodic sampler
func NewSampler(name string, power *domain.PowerState, interval time.Duration, sample SampleFunc) *Sampler {
	return &Sampler{
		name:     name,
		power:    power,
		interval: interval,
		sample:   sample,
	}
}

// Run samples, then waits interval, for as long as power stays on.
// Power is checked before every sample.
// It returns nil once power is off or ctx is cancelled, and the first
// error returned by the sample function otherwise.
func (s *Sampler) Run(ctx context.Context) error {
	logger := log.With().
		Str("worker", s.name).
		Str("session", SessionFrom(ctx)).
		Logger()

	logger.Info().
		Dur("interval", s.interval).
		Msg("starting sampler")

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for s.power.On() {
		if ctx.Err() != nil {
			logger.Info().Msg("sampler cancelled")
			return nil
		}

		if err := s.sample(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("sampler cancelled")
				return nil
			}
			logger.Error().Err(err).Msg("sampler failed")
			return err
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			logger.Info().Msg("sampler cancelled")
			return nil
		case <-timer.C:
		}
	}

	logger.Info().Msg("power off, stopping sampler")
	return nil
}
