package domain

import "context"

// Snapshot holds the most recent sample of each kind.
// Nil fields mean no sample has been reported yet.
type Snapshot struct {
	Luminosity *LuminositySample
	Distance   *DistanceSample
}

// SnapshotReader exposes the latest readings to outer surfaces
// This is a PORT - adapters (memory) will implement it
type SnapshotReader interface {
	// Latest returns a copy of the most recent readings
	Latest(ctx context.Context) Snapshot
}
