package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// SnapshotStore keeps the latest reading of each kind in memory.
// It implements ports.Reporter and domain.SnapshotReader.
// Nothing older than the last sample is kept.
type SnapshotStore struct {
	mu          sync.RWMutex
	luminosity  *domain.LuminositySample
	distance    *domain.DistanceSample
	unavailable error
	unavailAt   time.Time

	luminosityCount  int64
	distanceCount    int64
	unavailableCount int64
}

// NewSnapshotStore creates an empty store
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// ReportLuminosity replaces the latest luminosity sample
func (s *SnapshotStore) ReportLuminosity(sample domain.LuminositySample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.luminosity = &sample
	s.luminosityCount++
}

// ReportDistance replaces the latest distance sample
func (s *SnapshotStore) ReportDistance(sample domain.DistanceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.distance = &sample
	s.unavailable = nil
	s.distanceCount++
}

// ReportDistanceUnavailable records why the last ranging cycle was skipped
func (s *SnapshotStore) ReportDistanceUnavailable(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unavailable = reason
	s.unavailAt = time.Now()
	s.unavailableCount++
}

// Latest returns copies of the most recent samples
func (s *SnapshotStore) Latest(ctx context.Context) domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap domain.Snapshot
	if s.luminosity != nil {
		l := *s.luminosity
		snap.Luminosity = &l
	}
	if s.distance != nil {
		d := *s.distance
		snap.Distance = &d
	}
	return snap
}

// Unavailable returns the reason the last ranging cycle was skipped, if
// no distance has been reported since
func (s *SnapshotStore) Unavailable() (at time.Time, reason error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailAt, s.unavailable
}

// Counts returns how many reports of each kind were received
func (s *SnapshotStore) Counts() (luminosity, distance, unavailable int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.luminosityCount, s.distanceCount, s.unavailableCount
}
