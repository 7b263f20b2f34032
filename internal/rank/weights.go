// Package rank re-scores retrieval hits using intent, caller context,
// adaptive feedback weights, and freshness, and explains the outcome.
package rank

import "time"

// Ranked document fields referenced by intent and adaptive weights.
const (
	FieldContent      = "content"
	FieldFunctionName = "function_name"
	FieldSignature    = "signature"
	FieldDocstring    = "docstring"
	FieldImports      = "imports"
	FieldTests        = "tests"
	FieldErrorPaths   = "error_paths"
)

// WeightsSnapshot is an immutable weight table keyed by (intent, field).
// The feedback aggregator publishes a new snapshot via copy-on-update; the
// ranker reads exactly one snapshot per ranking operation, so a concurrent
// publish never tears a response.
type WeightsSnapshot struct {
	// Version increases with each publish.
	Version int64
	// GeneratedAt is when the aggregator built this snapshot.
	GeneratedAt time.Time
	// Weights maps "intent/field" to a multiplier around 1.0.
	Weights map[string]float64
	// Events is the number of feedback events that informed the snapshot.
	Events int
}

// Weight returns the multiplier for (intent, field), defaulting to 1.0.
func (s *WeightsSnapshot) Weight(intent, field string) float64 {
	if s == nil || s.Weights == nil {
		return 1.0
	}
	if w, ok := s.Weights[intent+"/"+field]; ok && w > 0 {
		return w
	}
	return 1.0
}

// SnapshotSource provides the latest weights snapshot. The feedback store
// implements this; the ranker depends only on the interface, which keeps the
// ranker→feedback edge one-way.
type SnapshotSource interface {
	Latest() *WeightsSnapshot
}

// StaticSnapshot is a SnapshotSource returning a fixed snapshot. Zero value
// means neutral weights.
type StaticSnapshot struct {
	Snapshot *WeightsSnapshot
}

// Latest returns the fixed snapshot.
func (s StaticSnapshot) Latest() *WeightsSnapshot { return s.Snapshot }
