// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ledger keeps the per-device violation count that drives
// escalation to network-level enforcement. The window is anchored: the
// first Suspicious event opens a 24h window, later events increment
// inside it, and the first event after the window has fully elapsed
// starts a fresh one at count 1. Counts never decrease inside a window
// except by full expiry or explicit admin reset.
package ledger

import (
	"time"

	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/keylock"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/store"
)

// DefaultWindow is the rolling violation window.
const DefaultWindow = 24 * time.Hour

// Ledger records and reads violation windows. Updates for one MAC are
// serialized so concurrent Suspicious events are never lost.
type Ledger struct {
	store  *store.Store
	clock  clock.Clock
	window time.Duration
	locks  keylock.Map
	logger *logging.Logger
}

// New creates a Ledger over the given store.
func New(st *store.Store, clk clock.Clock, logger *logging.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.WithComponent("ledger")
	}
	return &Ledger{store: st, clock: clk, window: DefaultWindow, logger: logger}
}

// RecordViolation counts one Suspicious classification for mac and
// returns the count in the current window. Call only for Suspicious
// events; Unknown never reaches here.
func (l *Ledger) RecordViolation(mac string) (int, error) {
	defer l.locks.Lock(mac)()

	now := l.clock.Now()
	w, ok, err := l.store.GetViolation(mac)
	if err != nil {
		return 0, err
	}
	if !ok || now.Sub(w.WindowStart) >= l.window {
		w = store.ViolationWindow{MAC: mac, Count: 1, WindowStart: now}
	} else {
		w.Count++
	}
	if err := l.store.PutViolation(w); err != nil {
		return 0, err
	}
	if w.Count == 1 {
		l.logger.Debug("violation window opened", "mac", mac)
	}
	return w.Count, nil
}

// Count returns the count in mac's active window, or 0 when no window
// is open or the last one has expired.
func (l *Ledger) Count(mac string) (int, error) {
	w, ok, err := l.store.GetViolation(mac)
	if err != nil {
		return 0, err
	}
	if !ok || l.clock.Now().Sub(w.WindowStart) >= l.window {
		return 0, nil
	}
	return w.Count, nil
}

// Reset clears mac's window immediately. Used after a manual rule
// removal so the device starts clean under layer-1 enforcement.
func (l *Ledger) Reset(mac string) error {
	defer l.locks.Lock(mac)()
	l.logger.Info("violation ledger reset", "mac", mac)
	return l.store.DeleteViolation(mac)
}

// List returns every stored window for the operator view, including
// ones that have lapsed but not been reset.
func (l *Ledger) List() ([]store.ViolationWindow, error) {
	return l.store.ListViolations()
}
