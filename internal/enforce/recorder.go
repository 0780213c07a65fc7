// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package enforce

import (
	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/store"
)

// TrafficRecorder persists classifier observations into the traffic
// audit log.
type TrafficRecorder struct {
	store *store.Store
	clock clock.Clock
}

// NewTrafficRecorder creates the classifier's audit sink.
func NewTrafficRecorder(st *store.Store, clk clock.Clock) *TrafficRecorder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &TrafficRecorder{store: st, clock: clk}
}

// RecordObservation appends one observation row.
func (r *TrafficRecorder) RecordObservation(mac string, ttl int, c classify.Classification, note string) error {
	return r.store.AppendTraffic(store.TrafficEntry{
		MAC:            mac,
		TTL:            ttl,
		Classification: c.String(),
		Note:           note,
		ObservedAt:     r.clock.Now(),
	})
}
