// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import "sync"

// SecurityProvider hands out versioned snapshots of the security
// configuration. The engine re-reads a snapshot per request or per
// sweep cycle; the admin surface replaces it atomically. No engine
// code ever holds a live reference across a cycle boundary.
type SecurityProvider struct {
	mu      sync.RWMutex
	current Security
	version uint64
}

// NewSecurityProvider seeds a provider with an initial configuration.
func NewSecurityProvider(sec Security) *SecurityProvider {
	return &SecurityProvider{current: sec, version: 1}
}

// Snapshot returns the current configuration by value with its version.
func (p *SecurityProvider) Snapshot() (Security, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.version
}

// Current returns the current configuration by value.
func (p *SecurityProvider) Current() Security {
	sec, _ := p.Snapshot()
	return sec
}

// Update validates and installs a new configuration, bumping the version.
func (p *SecurityProvider) Update(sec Security) error {
	if err := sec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = sec
	p.version++
	return nil
}
