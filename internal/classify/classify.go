// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package classify decides whether a device's traffic looks direct or
// shared. The heuristic is the TTL of packets reaching the gateway: a
// client behind a tethering hotspot costs one extra hop, so its TTL
// arrives lower than the configured baseline. This is a billing
// heuristic, not a security boundary.
package classify

import (
	"context"
	"fmt"

	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/logging"
)

// Classification is the verdict for one TTL observation.
type Classification int

const (
	// Unknown means the TTL could not be sampled. Admission treats it
	// as Normal; the violation ledger ignores it.
	Unknown Classification = iota
	Normal
	Suspicious
)

func (c Classification) String() string {
	switch c {
	case Normal:
		return "normal"
	case Suspicious:
		return "suspicious"
	default:
		return "unknown"
	}
}

// Parse maps a stored classification string back to its enum value.
func Parse(s string) Classification {
	switch s {
	case "normal":
		return Normal
	case "suspicious":
		return Suspicious
	default:
		return Unknown
	}
}

// Result carries one classification outcome plus the evidence behind it.
type Result struct {
	Classification Classification
	TTL            int
	Sampled        bool
	ExpectedTTL    int
	Deviation      int
}

// Prober samples the TTL a device presents to the gateway. Probe must
// honor the context deadline; a failed or timed-out probe returns an
// error, never a guess.
type Prober interface {
	Probe(ctx context.Context, ip string) (ttl int, err error)
}

// Recorder receives one audit entry per real observation. The log is
// append-only and never drives control flow.
type Recorder interface {
	RecordObservation(mac string, ttl int, c Classification, note string) error
}

// Classifier turns TTL samples into classifications and writes the
// audit trail.
type Classifier struct {
	prober   Prober
	recorder Recorder
	logger   *logging.Logger
}

// New creates a Classifier. recorder may be nil when no audit trail is
// wanted (tests).
func New(prober Prober, recorder Recorder, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.WithComponent("classify")
	}
	return &Classifier{prober: prober, recorder: recorder, logger: logger}
}

// FromTTL classifies a single observed TTL against the configured
// baseline. sampled=false forces Unknown.
func FromTTL(sec config.Security, ttl int, sampled bool) Classification {
	if !sec.TTLDetectionEnabled {
		return Normal
	}
	if !sampled {
		return Unknown
	}
	deviation := ttl - sec.ExpectedTTL
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation <= sec.TTLTolerance {
		return Normal
	}
	return Suspicious
}

// Observe probes the device at ip, classifies the sample, and appends
// an audit entry. Probe failures degrade to Unknown and are logged,
// never propagated. With detection disabled it short-circuits to
// Normal without probing or logging.
func (c *Classifier) Observe(ctx context.Context, sec config.Security, mac, ip string) Result {
	if !sec.TTLDetectionEnabled {
		return Result{Classification: Normal, ExpectedTTL: sec.ExpectedTTL}
	}

	probeCtx, cancel := context.WithTimeout(ctx, sec.ProbeTimeout)
	defer cancel()

	ttl, err := c.prober.Probe(probeCtx, ip)
	if err != nil {
		c.logger.Warn("ttl probe failed", "mac", mac, "ip", ip, "err", err)
		return Result{Classification: Unknown, ExpectedTTL: sec.ExpectedTTL}
	}

	res := Result{
		TTL:         ttl,
		Sampled:     true,
		ExpectedTTL: sec.ExpectedTTL,
	}
	res.Deviation = ttl - sec.ExpectedTTL
	if res.Deviation < 0 {
		res.Deviation = -res.Deviation
	}
	res.Classification = FromTTL(sec, ttl, true)

	if c.recorder != nil {
		note := observationNote(res, sec.TTLTolerance)
		if err := c.recorder.RecordObservation(mac, ttl, res.Classification, note); err != nil {
			c.logger.Error("recording ttl observation", "mac", mac, "err", err)
		}
	}
	return res
}

func observationNote(r Result, tolerance int) string {
	verb := "within"
	if r.Classification == Suspicious {
		verb = "exceeds"
	}
	return fmt.Sprintf("expected %d, detected %d, deviation %d %s tolerance %d",
		r.ExpectedTTL, r.TTL, r.Deviation, verb, tolerance)
}
