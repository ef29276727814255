package ports

import (
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// Reporter receives every sample produced by the workers.
// Implementations are called concurrently from several workers.
type Reporter interface {
	ReportLuminosity(sample domain.LuminositySample)
	ReportDistance(sample domain.DistanceSample)

	// ReportDistanceUnavailable is called when a ranging cycle is skipped
	ReportDistanceUnavailable(reason error)
}

// MultiReporter fans every report out to several reporters
type MultiReporter []Reporter

func (m MultiReporter) ReportLuminosity(sample domain.LuminositySample) {
	for _, r := range m {
		r.ReportLuminosity(sample)
	}
}

func (m MultiReporter) ReportDistance(sample domain.DistanceSample) {
	for _, r := range m {
		r.ReportDistance(sample)
	}
}

func (m MultiReporter) ReportDistanceUnavailable(reason error) {
	for _, r := range m {
		r.ReportDistanceUnavailable(reason)
	}
}
