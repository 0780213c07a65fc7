// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fwrule is layer 2 of enforcement: a packet-mangling rule in
// the forwarding path that rewrites the TTL of a device's forwarded
// packets. With the canonical value of 1 a forwarded packet dies at
// the very next hop, which makes re-sharing technically impossible
// rather than merely rate-limited.
//
// The engine only ever talks to the Backend interface; the nftables
// implementation lives behind a linux build tag and a no-op stub
// covers every other platform.
package fwrule

import (
	"context"
	"fmt"

	"github.com/piso-net/bantay/internal/errors"
)

func errPlatformUnavailable() error {
	return errors.New(errors.KindPlatform, "no packet filter backend available")
}

// Backend installs and removes TTL-mangling rules in the host packet
// filter. Implementations must be safe for concurrent use across
// different MACs; the Manager serializes calls per MAC.
type Backend interface {
	// InstallTTLRule adds a rule forcing the TTL of forwarded packets
	// from mac to ttlValue. It returns the exact descriptor of what
	// was installed, recorded for audit and for exact-match removal.
	InstallTTLRule(ctx context.Context, mac string, ttlValue int) (descriptor string, err error)

	// RemoveTTLRule removes the rule matching a previously returned
	// descriptor.
	RemoveTTLRule(ctx context.Context, descriptor string) error

	// FlushMAC removes any rule for mac regardless of descriptor.
	// Operator "force remove" for when the recorded descriptor no
	// longer matches what is in the kernel.
	FlushMAC(ctx context.Context, mac string) error
}

// UnavailableBackend is the fallback when no packet filter can be
// reached at all. Every operation reports a platform error, which the
// Manager records; the gateway keeps running on layer-1 enforcement.
type UnavailableBackend struct{}

func (UnavailableBackend) InstallTTLRule(ctx context.Context, mac string, ttlValue int) (string, error) {
	return "", errPlatformUnavailable()
}

func (UnavailableBackend) RemoveTTLRule(ctx context.Context, descriptor string) error {
	return errPlatformUnavailable()
}

func (UnavailableBackend) FlushMAC(ctx context.Context, mac string) error {
	return errPlatformUnavailable()
}

// ruleComment tags installed rules so removal can find exactly ours.
func ruleComment(mac string) string {
	return "bantay-ttl-" + mac
}

// describeRule renders the canonical descriptor for an installed rule.
func describeRule(mac string, ttlValue int) string {
	return fmt.Sprintf("ip bantay forward ether saddr %s ip ttl set %d comment %q",
		mac, ttlValue, ruleComment(mac))
}
