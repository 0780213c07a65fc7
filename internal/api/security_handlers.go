// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/netutil"
	"github.com/piso-net/bantay/internal/store"
)

const defaultListLimit = 200

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

func (s *Server) pathMAC(w http.ResponseWriter, r *http.Request) (string, bool) {
	mac, err := netutil.NormalizeMAC(r.PathValue("mac"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mac, true
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	windows, err := s.engine.Ledger().List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if windows == nil {
		windows = []store.ViolationWindow{}
	}
	s.writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	if mac != "" {
		var ok bool
		if mac, ok = s.queryMAC(w, mac); !ok {
			return
		}
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	sessions, err := s.engine.Tracker().List(mac, activeOnly, listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.engine.Rules().List(listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rules == nil {
		rules = []store.RuleRecord{}
	}
	s.writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleListTraffic(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	if mac != "" {
		var ok bool
		if mac, ok = s.queryMAC(w, mac); !ok {
			return
		}
	}
	entries, err := s.store.ListTraffic(mac, listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.TrafficEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) queryMAC(w http.ResponseWriter, raw string) (string, bool) {
	mac, err := netutil.NormalizeMAC(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mac, true
}

// handleActivateRule installs a rule immediately, outside the
// threshold path. Operator action for a device caught sharing by other
// means.
func (s *Server) handleActivateRule(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.pathMAC(w, r)
	if !ok {
		return
	}
	sec := s.engine.Provider().Current()
	violations, err := s.engine.Ledger().Count(mac)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := s.engine.Rules().Apply(r.Context(), mac, sec.EnforcedTTLValue, sec.RuleDuration, violations)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.pathMAC(w, r)
	if !ok {
		return
	}
	rec, found, err := s.engine.Deactivate(r.Context(), mac)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no open rule for device")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleForceRemoveRule(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.pathMAC(w, r)
	if !ok {
		return
	}
	rec, found, err := s.engine.ForceRemove(r.Context(), mac)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no open rule for device")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResetViolations(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.pathMAC(w, r)
	if !ok {
		return
	}
	if err := s.engine.Ledger().Reset(mac); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	stats := s.sweeper.RunOnce(r.Context(), s.engine.Provider().Current())
	s.writeJSON(w, http.StatusOK, stats)
}

// securityView mirrors config.Security with durations as strings, the
// same shape the HCL file uses.
type securityView struct {
	TTLDetectionEnabled   bool   `json:"ttl_detection_enabled"`
	ExpectedTTL           int    `json:"expected_ttl"`
	TTLTolerance          int    `json:"ttl_tolerance"`
	NormalDeviceLimit     int    `json:"normal_device_limit"`
	SuspiciousDeviceLimit int    `json:"suspicious_device_limit"`
	ViolationThreshold    int    `json:"violation_threshold"`
	TTLEnforcementEnabled bool   `json:"ttl_enforcement_enabled"`
	EnforcedTTLValue      int    `json:"enforced_ttl_value"`
	RuleDuration          string `json:"rule_duration"`
	SessionIdleTimeout    string `json:"session_idle_timeout"`
	ProbeTimeout          string `json:"probe_timeout"`
	SweepInterval         string `json:"sweep_interval"`
	TrafficRetention      string `json:"traffic_retention"`
	Version               uint64 `json:"version,omitempty"`
}

func securityViewOf(sec config.Security, version uint64) securityView {
	return securityView{
		TTLDetectionEnabled:   sec.TTLDetectionEnabled,
		ExpectedTTL:           sec.ExpectedTTL,
		TTLTolerance:          sec.TTLTolerance,
		NormalDeviceLimit:     sec.NormalDeviceLimit,
		SuspiciousDeviceLimit: sec.SuspiciousDeviceLimit,
		ViolationThreshold:    sec.ViolationThreshold,
		TTLEnforcementEnabled: sec.TTLEnforcementEnabled,
		EnforcedTTLValue:      sec.EnforcedTTLValue,
		RuleDuration:          sec.RuleDuration.String(),
		SessionIdleTimeout:    sec.SessionIdleTimeout.String(),
		ProbeTimeout:          sec.ProbeTimeout.String(),
		SweepInterval:         sec.SweepInterval.String(),
		TrafficRetention:      sec.TrafficRetention.String(),
		Version:               version,
	}
}

func (v securityView) toSecurity() (config.Security, error) {
	sec := config.Security{
		TTLDetectionEnabled:   v.TTLDetectionEnabled,
		ExpectedTTL:           v.ExpectedTTL,
		TTLTolerance:          v.TTLTolerance,
		NormalDeviceLimit:     v.NormalDeviceLimit,
		SuspiciousDeviceLimit: v.SuspiciousDeviceLimit,
		ViolationThreshold:    v.ViolationThreshold,
		TTLEnforcementEnabled: v.TTLEnforcementEnabled,
		EnforcedTTLValue:      v.EnforcedTTLValue,
	}
	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{v.RuleDuration, &sec.RuleDuration},
		{v.SessionIdleTimeout, &sec.SessionIdleTimeout},
		{v.ProbeTimeout, &sec.ProbeTimeout},
		{v.SweepInterval, &sec.SweepInterval},
		{v.TrafficRetention, &sec.TrafficRetention},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return config.Security{}, err
		}
		*d.dst = parsed
	}
	return sec, nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	sec, version := s.engine.Provider().Snapshot()
	s.writeJSON(w, http.StatusOK, securityViewOf(sec, version))
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var view securityView
	if err := decodeBody(r, &view); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sec, err := view.toSecurity()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Provider().Update(sec); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, version := s.engine.Provider().Snapshot()
	s.logger.Info("security configuration updated", "version", version)
	s.writeJSON(w, http.StatusOK, securityViewOf(updated, version))
}
