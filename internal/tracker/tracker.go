// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tracker maintains the registry of open portal sessions per
// device. It enforces nothing itself: admission decides whether a
// session may be opened, the tracker just records what is open.
//
// "Active" is evaluated lazily at read time: a session whose last
// activity is older than the idle timeout stops counting immediately,
// whether or not the sweep has compacted it yet. The sweep is pure
// cleanup, never a correctness requirement.
package tracker

import (
	"time"

	"github.com/google/uuid"

	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/store"
)

// Tracker records portal sessions in the store.
type Tracker struct {
	store  *store.Store
	clock  clock.Clock
	logger *logging.Logger
}

// New creates a Tracker.
func New(st *store.Store, clk clock.Clock, logger *logging.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.WithComponent("tracker")
	}
	return &Tracker{store: st, clock: clk, logger: logger}
}

// Register opens a session for mac and returns it. Admission has
// already approved the attempt; registration always succeeds
// structurally.
func (t *Tracker) Register(mac, sourceAddr string, c classify.Classification) (store.Session, error) {
	now := t.clock.Now()
	sess := store.Session{
		ID:             uuid.NewString(),
		MAC:            mac,
		SourceAddr:     sourceAddr,
		Classification: c.String(),
		OpenedAt:       now,
		LastSeenAt:     now,
		Active:         true,
	}
	if err := t.store.InsertSession(sess); err != nil {
		return store.Session{}, err
	}
	t.logger.Debug("session opened", "mac", mac, "session", sess.ID, "classification", sess.Classification)
	return sess, nil
}

// CountActive returns the number of live sessions for mac: marked
// active and seen within the idle timeout.
func (t *Tracker) CountActive(mac string, idleTimeout time.Duration) (int, error) {
	cutoff := t.clock.Now().Add(-idleTimeout)
	return t.store.CountActiveSessions(mac, cutoff)
}

// Touch refreshes a session's activity timestamp. Returns false when
// the session is unknown or already inactive; the portal treats that
// as "reconnect".
func (t *Tracker) Touch(sessionID string) (bool, error) {
	return t.store.TouchSession(sessionID, t.clock.Now())
}

// End marks a session inactive immediately. Idempotent.
func (t *Tracker) End(sessionID string) error {
	return t.store.EndSession(sessionID)
}

// SweepExpired compacts sessions idle past the timeout. Safe to run
// concurrently with reads and with itself.
func (t *Tracker) SweepExpired(idleTimeout time.Duration) (int64, error) {
	cutoff := t.clock.Now().Add(-idleTimeout)
	n, err := t.store.ExpireSessions(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.logger.Debug("expired idle sessions", "count", n)
	}
	return n, nil
}

// List returns sessions for the operator view.
func (t *Tracker) List(mac string, activeOnly bool, limit int) ([]store.Session, error) {
	return t.store.ListSessions(mac, activeOnly, limit)
}
