// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the gateway configuration. The security block
// is the single source of truth for detection and enforcement tuning;
// engine code receives an immutable snapshot of it per call or per
// sweep cycle, never a live pointer.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level daemon configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional"`

	// ListenAddr is the bind address for the admin/portal HTTP surface.
	ListenAddr string `hcl:"listen_addr,optional"`

	// StateDir holds the SQLite database and runtime files.
	StateDir string `hcl:"state_dir,optional"`

	LogLevel string `hcl:"log_level,optional"`

	Security *SecurityBlock `hcl:"security,block"`
}

// SecurityBlock is the raw HCL form of the security configuration.
// Durations arrive as strings and are parsed during Resolve.
type SecurityBlock struct {
	TTLDetectionEnabled   *bool  `hcl:"ttl_detection_enabled,optional"`
	ExpectedTTL           *int   `hcl:"expected_ttl,optional"`
	TTLTolerance          *int   `hcl:"ttl_tolerance,optional"`
	NormalDeviceLimit     *int   `hcl:"normal_device_limit,optional"`
	SuspiciousDeviceLimit *int   `hcl:"suspicious_device_limit,optional"`
	ViolationThreshold    *int   `hcl:"violation_threshold,optional"`
	TTLEnforcementEnabled *bool  `hcl:"ttl_enforcement_enabled,optional"`
	EnforcedTTLValue      *int   `hcl:"enforced_ttl_value,optional"`
	RuleDuration          string `hcl:"rule_duration,optional"`
	SessionIdleTimeout    string `hcl:"session_idle_timeout,optional"`
	ProbeTimeout          string `hcl:"probe_timeout,optional"`
	SweepInterval         string `hcl:"sweep_interval,optional"`
	TrafficRetention      string `hcl:"traffic_retention,optional"`
}

// Security is the resolved, validated security configuration. It is a
// plain value: copying it is the intended way to hand it to the engine.
type Security struct {
	// TTLDetectionEnabled gates the classifier entirely. When false,
	// every device classifies as Normal and nothing is logged.
	TTLDetectionEnabled bool

	// ExpectedTTL is the TTL a direct client should present. This is
	// per-deployment: a fleet of Android clients sits at 64, Windows
	// at 128. There is no universal constant.
	ExpectedTTL  int
	TTLTolerance int

	// Per-device concurrent session caps (layer 1).
	NormalDeviceLimit     int
	SuspiciousDeviceLimit int

	// ViolationThreshold is the rolling-window violation count that
	// escalates a device to network-level enforcement (layer 2).
	ViolationThreshold int

	// TTLEnforcementEnabled gates layer 2. Layer 1 works without it.
	TTLEnforcementEnabled bool

	// EnforcedTTLValue is written into forwarded packets of a blocked
	// device. 1 kills sharing completely: the next hop decrements it
	// to zero and drops the packet.
	EnforcedTTLValue int

	RuleDuration       time.Duration
	SessionIdleTimeout time.Duration
	ProbeTimeout       time.Duration
	SweepInterval      time.Duration
	TrafficRetention   time.Duration
}

// DefaultSecurity mirrors the factory settings of the shipped gateway.
func DefaultSecurity() Security {
	return Security{
		TTLDetectionEnabled:   true,
		ExpectedTTL:           64,
		TTLTolerance:          2,
		NormalDeviceLimit:     3,
		SuspiciousDeviceLimit: 1,
		ViolationThreshold:    10,
		TTLEnforcementEnabled: false,
		EnforcedTTLValue:      1,
		RuleDuration:          2 * time.Hour,
		SessionIdleTimeout:    30 * time.Minute,
		ProbeTimeout:          2 * time.Second,
		SweepInterval:         5 * time.Minute,
		TrafficRetention:      7 * 24 * time.Hour,
	}
}

// Validate checks invariants the engine depends on.
func (s Security) Validate() error {
	if s.ExpectedTTL < 1 || s.ExpectedTTL > 255 {
		return fmt.Errorf("expected_ttl must be 1-255, got %d", s.ExpectedTTL)
	}
	if s.TTLTolerance < 0 {
		return fmt.Errorf("ttl_tolerance must be >= 0, got %d", s.TTLTolerance)
	}
	if s.EnforcedTTLValue < 1 || s.EnforcedTTLValue > 255 {
		return fmt.Errorf("enforced_ttl_value must be 1-255, got %d", s.EnforcedTTLValue)
	}
	if s.NormalDeviceLimit < 1 {
		return fmt.Errorf("normal_device_limit must be >= 1, got %d", s.NormalDeviceLimit)
	}
	if s.SuspiciousDeviceLimit < 1 {
		return fmt.Errorf("suspicious_device_limit must be >= 1, got %d", s.SuspiciousDeviceLimit)
	}
	if s.ViolationThreshold < 1 {
		return fmt.Errorf("violation_threshold must be >= 1, got %d", s.ViolationThreshold)
	}
	if s.RuleDuration <= 0 {
		return fmt.Errorf("rule_duration must be positive, got %s", s.RuleDuration)
	}
	if s.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session_idle_timeout must be positive, got %s", s.SessionIdleTimeout)
	}
	if s.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", s.ProbeTimeout)
	}
	return nil
}

// Resolve merges the raw HCL block over the defaults and validates.
func (b *SecurityBlock) Resolve() (Security, error) {
	sec := DefaultSecurity()
	if b == nil {
		return sec, nil
	}
	if b.TTLDetectionEnabled != nil {
		sec.TTLDetectionEnabled = *b.TTLDetectionEnabled
	}
	if b.ExpectedTTL != nil {
		sec.ExpectedTTL = *b.ExpectedTTL
	}
	if b.TTLTolerance != nil {
		sec.TTLTolerance = *b.TTLTolerance
	}
	if b.NormalDeviceLimit != nil {
		sec.NormalDeviceLimit = *b.NormalDeviceLimit
	}
	if b.SuspiciousDeviceLimit != nil {
		sec.SuspiciousDeviceLimit = *b.SuspiciousDeviceLimit
	}
	if b.ViolationThreshold != nil {
		sec.ViolationThreshold = *b.ViolationThreshold
	}
	if b.TTLEnforcementEnabled != nil {
		sec.TTLEnforcementEnabled = *b.TTLEnforcementEnabled
	}
	if b.EnforcedTTLValue != nil {
		sec.EnforcedTTLValue = *b.EnforcedTTLValue
	}

	durations := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{b.RuleDuration, &sec.RuleDuration, "rule_duration"},
		{b.SessionIdleTimeout, &sec.SessionIdleTimeout, "session_idle_timeout"},
		{b.ProbeTimeout, &sec.ProbeTimeout, "probe_timeout"},
		{b.SweepInterval, &sec.SweepInterval, "sweep_interval"},
		{b.TrafficRetention, &sec.TrafficRetention, "traffic_retention"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Security{}, fmt.Errorf("parsing %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if err := sec.Validate(); err != nil {
		return Security{}, err
	}
	return sec, nil
}
