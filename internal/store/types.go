// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import "time"

// TrafficEntry is one row of the append-only TTL observation log.
type TrafficEntry struct {
	ID             int64     `json:"id"`
	MAC            string    `json:"mac"`
	TTL            int       `json:"ttl"`
	Classification string    `json:"classification"`
	Note           string    `json:"note,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// ViolationWindow is a device's rolling violation count and its anchor.
type ViolationWindow struct {
	MAC         string    `json:"mac"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Session is one tracked portal connection.
type Session struct {
	ID             string    `json:"id"`
	MAC            string    `json:"mac"`
	SourceAddr     string    `json:"source_addr"`
	Classification string    `json:"classification"`
	OpenedAt       time.Time `json:"opened_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	Active         bool      `json:"active"`
}

// RuleStatus is the lifecycle state of a firewall rule record.
type RuleStatus string

const (
	RulePending  RuleStatus = "pending"
	RuleActive   RuleStatus = "active"
	RuleExpired  RuleStatus = "expired"
	RuleDisabled RuleStatus = "disabled"
	RuleError    RuleStatus = "error"
)

// Terminal reports whether the status admits no further transitions
// except explicit re-creation.
func (s RuleStatus) Terminal() bool {
	return s == RuleExpired || s == RuleDisabled
}

// RuleRecord is one network-level TTL enforcement rule.
type RuleRecord struct {
	ID             int64      `json:"id"`
	MAC            string     `json:"mac"`
	TTLValue       int        `json:"ttl_value"`
	Status         RuleStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ViolationCount int        `json:"violation_count"`
	// Descriptor records the exact rule installed so removal can match
	// it precisely, and so operators can audit what hit the kernel.
	Descriptor string `json:"descriptor"`
	Note       string `json:"note,omitempty"`
}
