// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package admission is layer 1 of enforcement: the soft per-device
// concurrent-session cap. Every connection attempt and every portal
// status refresh goes through CanAdmit; it mutates nothing except the
// violation ledger, so the portal can poll it freely.
//
// Engine-internal failures never surface to the customer. The worst a
// paying device ever sees is "connection limit reached", which is a
// legitimate state, not an error.
package admission

import (
	"context"

	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/ledger"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/tracker"
)

// Decision is the admission verdict for one connection attempt. The
// portal renders "Current/Limit active connections" straight from it.
type Decision struct {
	Admit          bool                    `json:"admit"`
	Current        int                     `json:"current"`
	Limit          int                     `json:"limit"`
	Classification classify.Classification `json:"-"`
	// TTL holds the sampled value when Sampled is true.
	TTL     int  `json:"ttl,omitempty"`
	Sampled bool `json:"sampled"`
	// ViolationCount is the device's ledger count after this
	// evaluation. The orchestrator compares it to the escalation
	// threshold.
	ViolationCount int `json:"violation_count"`
}

// Controller evaluates connection attempts.
type Controller struct {
	classifier *classify.Classifier
	tracker    *tracker.Tracker
	ledger     *ledger.Ledger
	logger     *logging.Logger
}

// New creates a Controller.
func New(cl *classify.Classifier, tr *tracker.Tracker, ld *ledger.Ledger, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.WithComponent("admission")
	}
	return &Controller{classifier: cl, tracker: tr, ledger: ld, logger: logger}
}

// Limit returns the session cap in force for a classification.
// Unknown gets the normal cap: a failed probe must not punish a
// paying customer.
func Limit(sec config.Security, c classify.Classification) int {
	if c == classify.Suspicious {
		return sec.SuspiciousDeviceLimit
	}
	return sec.NormalDeviceLimit
}

// CanAdmit classifies the device's current traffic and decides whether
// it may open another session. Suspicious classifications accrue a
// ledger violation whether or not the attempt is admitted — a sharing
// device under its cap is still sharing.
func (c *Controller) CanAdmit(ctx context.Context, sec config.Security, mac, ip string) Decision {
	res := c.classifier.Observe(ctx, sec, mac, ip)

	dec := Decision{
		Classification: res.Classification,
		TTL:            res.TTL,
		Sampled:        res.Sampled,
		Limit:          Limit(sec, res.Classification),
	}

	current, err := c.tracker.CountActive(mac, sec.SessionIdleTimeout)
	if err != nil {
		// Fail open at the cap: an unreadable tracker must not lock a
		// paying device out.
		c.logger.Error("counting active sessions", "mac", mac, "err", err)
		current = 0
	}
	dec.Current = current
	dec.Admit = current < dec.Limit

	if res.Classification == classify.Suspicious {
		count, err := c.ledger.RecordViolation(mac)
		if err != nil {
			c.logger.Error("recording violation", "mac", mac, "err", err)
		} else {
			dec.ViolationCount = count
		}
	} else if count, err := c.ledger.Count(mac); err == nil {
		dec.ViolationCount = count
	}

	return dec
}
