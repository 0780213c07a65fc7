// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package enforce ties the layers together: classification feeds the
// ledger, the ledger feeds escalation, escalation drives the firewall
// rule manager, and rule removal resets the ledger. Every portal
// request flows through the Engine; the Sweeper keeps the background
// state honest.
package enforce

import (
	"context"
	"fmt"

	"github.com/piso-net/bantay/internal/admission"
	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/fwrule"
	"github.com/piso-net/bantay/internal/ledger"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/metrics"
	"github.com/piso-net/bantay/internal/store"
	"github.com/piso-net/bantay/internal/tracker"
)

// State is the per-device enforcement posture.
type State int

const (
	// Unrestricted: no open sessions, normal classification.
	Unrestricted State = iota
	// LimitedNormal: under the normal per-device session cap.
	LimitedNormal
	// LimitedSuspicious: sharing detected, under the reduced cap.
	LimitedSuspicious
	// NetworkBlocked: a TTL-mangling rule is live in the kernel.
	NetworkBlocked
)

func (s State) String() string {
	switch s {
	case Unrestricted:
		return "unrestricted"
	case LimitedNormal:
		return "limited_normal"
	case LimitedSuspicious:
		return "limited_suspicious"
	case NetworkBlocked:
		return "network_blocked"
	default:
		return "unknown"
	}
}

// Assessment is the engine's full answer for one device evaluation:
// the admission verdict, the enforcement state, and the status line
// the portal shows the customer.
type Assessment struct {
	Decision   admission.Decision
	State      State
	StatusText string
	// Rule is the device's open rule record, when one exists.
	Rule    store.RuleRecord
	HasRule bool
}

// Engine is the enforcement orchestrator.
type Engine struct {
	provider  *config.SecurityProvider
	admission *admission.Controller
	tracker   *tracker.Tracker
	ledger    *ledger.Ledger
	rules     *fwrule.Manager
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// New wires the engine. The rule manager's removal hook is claimed
// here: a rule leaving the kernel resets the device's ledger so it
// starts clean under layer 1.
func New(provider *config.SecurityProvider, adm *admission.Controller, tr *tracker.Tracker,
	ld *ledger.Ledger, rules *fwrule.Manager, m *metrics.Metrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.WithComponent("enforce")
	}
	if m == nil {
		m = metrics.New()
	}
	e := &Engine{
		provider:  provider,
		admission: adm,
		tracker:   tr,
		ledger:    ld,
		rules:     rules,
		metrics:   m,
		logger:    logger,
	}
	rules.OnRemoved(func(mac string) {
		if err := ld.Reset(mac); err != nil {
			logger.Error("resetting ledger after rule removal", "mac", mac, "err", err)
		}
	})
	return e
}

// Tracker exposes the session tracker for the portal handlers.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Ledger exposes the violation ledger for the operator handlers.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Rules exposes the rule manager for the operator handlers.
func (e *Engine) Rules() *fwrule.Manager { return e.rules }

// Provider exposes the configuration provider.
func (e *Engine) Provider() *config.SecurityProvider { return e.provider }

// Evaluate runs one full pass for a device: classify, decide
// admission, escalate if the ledger crossed the threshold, and report
// the resulting state. Safe on every connection attempt and every
// status refresh; it mutates only the ledger and, on escalation, the
// rule table.
func (e *Engine) Evaluate(ctx context.Context, mac, ip string) Assessment {
	sec := e.provider.Current()
	dec := e.admission.CanAdmit(ctx, sec, mac, ip)
	e.record(sec, dec)

	rule, hasRule, err := e.rules.Get(mac)
	if err != nil {
		// Fail open at layer 2: an unreadable rule table must not
		// change what the customer sees.
		e.logger.Error("reading rule state", "mac", mac, "err", err)
		hasRule = false
	}

	if e.shouldEscalate(sec, dec, rule, hasRule) {
		rec, applyErr := e.rules.Apply(ctx, mac, sec.EnforcedTTLValue, sec.RuleDuration, dec.ViolationCount)
		if applyErr != nil {
			e.logger.Error("escalation failed", "mac", mac, "err", applyErr)
		} else {
			rule, hasRule = rec, true
			switch rec.Status {
			case store.RuleActive:
				e.metrics.RulesApplied.Inc()
				e.logger.Warn("device escalated to network enforcement",
					"mac", mac, "violations", dec.ViolationCount, "expires", rec.ExpiresAt)
			case store.RuleError:
				// Layer 2 unavailable; the device stays under the
				// suspicious session cap.
				e.metrics.RulesFailed.Inc()
			}
		}
	}

	state := deriveState(dec, rule, hasRule)
	return Assessment{
		Decision:   dec,
		State:      state,
		StatusText: statusText(state, rule),
		Rule:       rule,
		HasRule:    hasRule,
	}
}

// Connect evaluates an attempt and, when admitted, opens a session.
// The two steps are deliberately separate operations on the tracker:
// evaluation never mutates it.
func (e *Engine) Connect(ctx context.Context, mac, ip, sourceAddr string) (Assessment, store.Session, error) {
	as := e.Evaluate(ctx, mac, ip)
	if !as.Decision.Admit {
		return as, store.Session{}, nil
	}
	sess, err := e.tracker.Register(mac, sourceAddr, as.Decision.Classification)
	if err != nil {
		return as, store.Session{}, err
	}
	as.Decision.Current++
	return as, sess, nil
}

// Keepalive refreshes a session. False means the session lapsed and
// the portal should reconnect.
func (e *Engine) Keepalive(sessionID string) (bool, error) {
	return e.tracker.Touch(sessionID)
}

// Disconnect closes a session. Idempotent.
func (e *Engine) Disconnect(sessionID string) error {
	return e.tracker.End(sessionID)
}

// Deactivate is the operator's manual rule removal. The removal hook
// resets the ledger, which is the NetworkBlocked to LimitedSuspicious
// transition's clean slate.
func (e *Engine) Deactivate(ctx context.Context, mac string) (store.RuleRecord, bool, error) {
	return e.rules.Disable(ctx, mac)
}

// ForceRemove clears a device's rule even when the recorded descriptor
// no longer matches the kernel state.
func (e *Engine) ForceRemove(ctx context.Context, mac string) (store.RuleRecord, bool, error) {
	return e.rules.ForceRemove(ctx, mac)
}

func (e *Engine) record(sec config.Security, dec admission.Decision) {
	e.metrics.Classifications.WithLabelValues(dec.Classification.String()).Inc()
	if sec.TTLDetectionEnabled && !dec.Sampled {
		e.metrics.ProbeFailures.Inc()
	}
	if dec.Classification == classify.Suspicious {
		e.metrics.ViolationsTotal.Inc()
	}
	if dec.Admit {
		e.metrics.AdmissionsAllowed.Inc()
	} else {
		e.metrics.AdmissionsDenied.Inc()
	}
}

// shouldEscalate gates the LimitedSuspicious to NetworkBlocked
// transition: threshold crossed, layer 2 enabled, and no rule already
// live. A record stuck in the error state is re-attempted.
func (e *Engine) shouldEscalate(sec config.Security, dec admission.Decision, rule store.RuleRecord, hasRule bool) bool {
	if !sec.TTLEnforcementEnabled {
		return false
	}
	if dec.Classification != classify.Suspicious {
		return false
	}
	if dec.ViolationCount < sec.ViolationThreshold {
		return false
	}
	return !hasRule || rule.Status == store.RuleError
}

// deriveState: a live rule dominates; otherwise the current
// classification sets the cap tier; otherwise open sessions
// distinguish LimitedNormal from Unrestricted.
func deriveState(dec admission.Decision, rule store.RuleRecord, hasRule bool) State {
	if hasRule && (rule.Status == store.RuleActive || rule.Status == store.RulePending) {
		return NetworkBlocked
	}
	if dec.Classification == classify.Suspicious {
		return LimitedSuspicious
	}
	if dec.Current > 0 {
		return LimitedNormal
	}
	return Unrestricted
}

func statusText(state State, rule store.RuleRecord) string {
	switch state {
	case NetworkBlocked:
		return fmt.Sprintf("Network-Level Enforcement Active — expires %s",
			rule.ExpiresAt.Format("Jan 2 2006 3:04 PM"))
	case LimitedSuspicious:
		return "TTL Warning: sharing detected"
	default:
		return "Normal TTL"
	}
}
