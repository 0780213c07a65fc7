// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine Prometheus metrics.
type Metrics struct {
	Classifications   *prometheus.CounterVec
	ProbeFailures     prometheus.Counter
	ViolationsTotal   prometheus.Counter
	AdmissionsAllowed prometheus.Counter
	AdmissionsDenied  prometheus.Counter
	RulesApplied      prometheus.Counter
	RulesFailed       prometheus.Counter
	RulesExpired      prometheus.Counter
	SweepRuns         prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

// New creates the engine metrics collector.
func New() *Metrics {
	return &Metrics{
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bantay_classifications_total",
			Help: "TTL classifications by result",
		}, []string{"result"}),
		ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_probe_failures_total",
			Help: "ICMP TTL probes that returned no sample",
		}),
		ViolationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_violations_total",
			Help: "Suspicious classifications recorded in the violation ledger",
		}),
		AdmissionsAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_admissions_allowed_total",
			Help: "Connection attempts admitted under the session cap",
		}),
		AdmissionsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_admissions_denied_total",
			Help: "Connection attempts denied at the session cap",
		}),
		RulesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_ttl_rules_applied_total",
			Help: "TTL enforcement rules successfully installed",
		}),
		RulesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_ttl_rules_failed_total",
			Help: "TTL enforcement rule installs or removals that failed",
		}),
		RulesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_ttl_rules_expired_total",
			Help: "TTL enforcement rules removed after their lifetime elapsed",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bantay_sweep_runs_total",
			Help: "Completed maintenance sweep cycles",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bantay_active_sessions",
			Help: "Portal sessions currently counted as active",
		}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Classifications,
		m.ProbeFailures,
		m.ViolationsTotal,
		m.AdmissionsAllowed,
		m.AdmissionsDenied,
		m.RulesApplied,
		m.RulesFailed,
		m.RulesExpired,
		m.SweepRuns,
		m.ActiveSessions,
	)
}
