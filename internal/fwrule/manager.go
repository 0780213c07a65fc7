// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fwrule

import (
	"context"
	"time"

	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/keylock"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/store"
)

// defaultOpTimeout bounds a single backend operation. A wedged netlink
// socket must not hang a portal request.
const defaultOpTimeout = 5 * time.Second

// Manager owns the lifecycle of TTL enforcement rules: at most one
// non-terminal rule per MAC, bounded lifetime, resilient cleanup.
// Apply and Remove are serialized per MAC; different devices proceed
// concurrently.
type Manager struct {
	store     *store.Store
	backend   Backend
	clock     clock.Clock
	locks     keylock.Map
	logger    *logging.Logger
	opTimeout time.Duration

	// onRemoved runs after a rule leaves the kernel (expiry, disable,
	// or force-remove). The orchestrator hooks the ledger reset here
	// so the device gets a fresh start under layer 1.
	onRemoved func(mac string)
}

// NewManager creates a Manager over the given store and backend.
func NewManager(st *store.Store, backend Backend, clk clock.Clock, logger *logging.Logger) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.WithComponent("fwrule")
	}
	return &Manager{
		store:     st,
		backend:   backend,
		clock:     clk,
		logger:    logger,
		opTimeout: defaultOpTimeout,
	}
}

// OnRemoved registers the removal hook. Call before the manager is in use.
func (m *Manager) OnRemoved(fn func(mac string)) {
	m.onRemoved = fn
}

// Apply installs a TTL rule for mac, or returns the existing record
// unchanged when one is already pending or active. Install failures do
// not propagate: the record is stored with status error and returned,
// the device degrades to layer-1 enforcement, and the operator view
// shows the failure.
func (m *Manager) Apply(ctx context.Context, mac string, ttlValue int, duration time.Duration, violations int) (store.RuleRecord, error) {
	defer m.locks.Lock(mac)()

	// Forwarded packets need a TTL the kernel will accept.
	if ttlValue < 1 {
		ttlValue = 1
	}
	if ttlValue > 255 {
		ttlValue = 255
	}

	open, ok, err := m.store.GetOpenRule(mac)
	if err != nil {
		return store.RuleRecord{}, err
	}
	if ok && (open.Status == store.RulePending || open.Status == store.RuleActive) {
		// Idempotent: exactly one live rule per MAC, exactly one
		// external installation.
		return open, nil
	}

	now := m.clock.Now()
	rec := store.RuleRecord{
		MAC:            mac,
		TTLValue:       ttlValue,
		Status:         store.RulePending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
		ViolationCount: violations,
	}
	if ok {
		// Re-arm a record stuck in the error state instead of piling
		// up rows.
		rec.ID = open.ID
		rec.CreatedAt = open.CreatedAt
		if err := m.store.UpdateRule(rec); err != nil {
			return store.RuleRecord{}, err
		}
	} else {
		rec, err = m.store.InsertRule(rec)
		if err != nil {
			return store.RuleRecord{}, err
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	desc, installErr := m.backend.InstallTTLRule(opCtx, mac, ttlValue)
	if installErr != nil {
		rec.Status = store.RuleError
		rec.Note = installErr.Error()
		m.logger.Error("ttl rule install failed", "mac", mac,
			"kind", errors.GetKind(installErr).String(), "err", installErr)
	} else {
		rec.Status = store.RuleActive
		rec.Descriptor = desc
		rec.Note = ""
		m.logger.Info("ttl rule active", "mac", mac, "ttl", ttlValue, "expires", rec.ExpiresAt)
	}
	if err := m.store.UpdateRule(rec); err != nil {
		return store.RuleRecord{}, err
	}
	return rec, nil
}

// Remove takes mac's rule out of the kernel on the expiry path. The
// record becomes expired on success and error on failure, left for the
// next sweep or an operator force-remove. Returns false when the
// device has no open rule.
func (m *Manager) Remove(ctx context.Context, mac string) (store.RuleRecord, bool, error) {
	defer m.locks.Lock(mac)()
	return m.removeLocked(ctx, mac, store.RuleExpired)
}

// Disable is the operator's deactivate: the rule is removed
// immediately regardless of expiry and the record becomes disabled.
func (m *Manager) Disable(ctx context.Context, mac string) (store.RuleRecord, bool, error) {
	defer m.locks.Lock(mac)()
	return m.removeLocked(ctx, mac, store.RuleDisabled)
}

// ForceRemove bypasses the recorded descriptor and flushes everything
// tagged for mac. The record is marked disabled even when the backend
// reports failure — this is the operator's last resort, and the stored
// descriptor is already known not to match.
func (m *Manager) ForceRemove(ctx context.Context, mac string) (store.RuleRecord, bool, error) {
	defer m.locks.Lock(mac)()

	open, ok, err := m.store.GetOpenRule(mac)
	if err != nil {
		return store.RuleRecord{}, false, err
	}
	if !ok {
		return store.RuleRecord{}, false, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	if flushErr := m.backend.FlushMAC(opCtx, mac); flushErr != nil {
		m.logger.Warn("force remove: backend flush failed, disabling record anyway",
			"mac", mac, "err", flushErr)
		open.Note = flushErr.Error()
	} else {
		open.Note = ""
	}
	open.Status = store.RuleDisabled
	if err := m.store.UpdateRule(open); err != nil {
		return store.RuleRecord{}, false, err
	}
	m.notifyRemoved(mac)
	return open, true, nil
}

func (m *Manager) removeLocked(ctx context.Context, mac string, final store.RuleStatus) (store.RuleRecord, bool, error) {
	open, ok, err := m.store.GetOpenRule(mac)
	if err != nil {
		return store.RuleRecord{}, false, err
	}
	if !ok {
		return store.RuleRecord{}, false, nil
	}

	// A record that never made it into the kernel has nothing to
	// remove; close it out directly.
	if open.Descriptor == "" {
		open.Status = final
		if err := m.store.UpdateRule(open); err != nil {
			return store.RuleRecord{}, false, err
		}
		m.notifyRemoved(mac)
		return open, true, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	if removeErr := m.backend.RemoveTTLRule(opCtx, open.Descriptor); removeErr != nil {
		open.Status = store.RuleError
		open.Note = removeErr.Error()
		if err := m.store.UpdateRule(open); err != nil {
			return store.RuleRecord{}, false, err
		}
		return open, true, errors.Wrapf(removeErr, errors.GetKind(removeErr),
			"removing ttl rule for %s", mac)
	}

	open.Status = final
	open.Note = ""
	if err := m.store.UpdateRule(open); err != nil {
		return store.RuleRecord{}, false, err
	}
	m.logger.Info("ttl rule removed", "mac", mac, "status", string(final))
	m.notifyRemoved(mac)
	return open, true, nil
}

// SweepResult summarizes one expiry pass.
type SweepResult struct {
	Removed int
	Failed  int
}

// SweepExpired removes every active rule past its expiry and retries
// rules stuck in the error state whose lifetime has lapsed. One
// device's failure never blocks the rest of the batch.
func (m *Manager) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := m.clock.Now()
	var res SweepResult

	expired, err := m.store.ListExpiredActive(now)
	if err != nil {
		return res, err
	}
	stuck, err := m.store.ListErrorRules()
	if err != nil {
		return res, err
	}
	for _, r := range stuck {
		if r.ExpiresAt.Before(now) {
			expired = append(expired, r)
		}
	}

	for _, r := range expired {
		if _, _, err := m.Remove(ctx, r.MAC); err != nil {
			res.Failed++
			m.logger.Error("sweep: rule removal failed, will retry", "mac", r.MAC, "err", err)
			continue
		}
		res.Removed++
	}
	return res, nil
}

// Get returns mac's open rule, if any.
func (m *Manager) Get(mac string) (store.RuleRecord, bool, error) {
	return m.store.GetOpenRule(mac)
}

// List returns rule records for the operator view.
func (m *Manager) List(limit int) ([]store.RuleRecord, error) {
	return m.store.ListRules(limit)
}

func (m *Manager) notifyRemoved(mac string) {
	if m.onRemoved != nil {
		m.onRemoved(mac)
	}
}
