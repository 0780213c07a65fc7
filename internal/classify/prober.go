// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classify

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/netutil"
)

// PingProber samples a device's TTL with a single ICMP echo. The TTL of
// the reply is the TTL the device stamps on its own packets, minus the
// hops between it and us; on the gateway's own LAN segment that is the
// raw value we compare against the baseline.
type PingProber struct {
	// Privileged selects raw ICMP sockets. The gateway daemon runs as
	// root (it owns nftables anyway), but unprivileged UDP ping keeps
	// development setups working.
	Privileged bool
}

// Probe sends one echo request and returns the reply TTL. The context
// deadline bounds the whole exchange.
func (p *PingProber) Probe(ctx context.Context, ip string) (int, error) {
	if !netutil.ValidIP(ip) {
		return 0, errors.Errorf(errors.KindValidation, "invalid probe target %q", ip)
	}

	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindSampling, "creating pinger")
	}
	pinger.Count = 1
	pinger.SetPrivileged(p.Privileged)
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	ttl := 0
	received := false
	pinger.OnRecv = func(pkt *probing.Packet) {
		ttl = pkt.TTL
		received = true
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, errors.Wrapf(err, errors.KindSampling, "probing %s", ip)
	}
	if !received {
		return 0, errors.Errorf(errors.KindSampling, "no echo reply from %s", ip)
	}
	return ttl, nil
}
