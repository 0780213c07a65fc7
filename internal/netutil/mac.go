// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netutil validates and normalizes the device identifiers the
// engine keys all of its state on. Everything that crosses the portal
// boundary goes through here before it touches a store or a rule.
package netutil

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// NormalizeMAC parses and canonicalizes a MAC address to the lowercase
// colon-separated form used as the key for all per-device state.
// Only 48-bit hardware addresses are accepted.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid mac address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid mac address %q: want 48-bit address", s)
	}
	return strings.ToLower(hw.String()), nil
}

// ParseMAC returns the raw hardware address bytes for a MAC string.
func ParseMAC(s string) (net.HardwareAddr, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("invalid mac address %q: want 48-bit address", s)
	}
	return hw, nil
}

// ValidIP reports whether s is a well-formed unicast IP address.
func ValidIP(s string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return !addr.IsMulticast() && !addr.IsUnspecified()
}
