// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"github.com/piso-net/bantay/internal/enforce"
	"github.com/piso-net/bantay/internal/netutil"
)

type admitRequest struct {
	MAC string `json:"mac"`
	IP  string `json:"ip"`
}

type connectRequest struct {
	MAC        string `json:"mac"`
	IP         string `json:"ip"`
	SourceAddr string `json:"source_addr"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// assessmentView is the portal's rendering contract: the admission
// tuple plus the human-readable status line.
type assessmentView struct {
	Admit          bool   `json:"admit"`
	Current        int    `json:"current"`
	Limit          int    `json:"limit"`
	Classification string `json:"classification"`
	TTL            int    `json:"ttl,omitempty"`
	Sampled        bool   `json:"sampled"`
	ViolationCount int    `json:"violation_count"`
	State          string `json:"state"`
	Status         string `json:"status"`
	SessionID      string `json:"session_id,omitempty"`
}

func viewOf(as enforce.Assessment) assessmentView {
	return assessmentView{
		Admit:          as.Decision.Admit,
		Current:        as.Decision.Current,
		Limit:          as.Decision.Limit,
		Classification: as.Decision.Classification.String(),
		TTL:            as.Decision.TTL,
		Sampled:        as.Decision.Sampled,
		ViolationCount: as.Decision.ViolationCount,
		State:          as.State.String(),
		Status:         as.StatusText,
	}
}

func (s *Server) deviceParams(w http.ResponseWriter, mac, ip string) (string, string, bool) {
	normalized, err := netutil.NormalizeMAC(mac)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if !netutil.ValidIP(ip) {
		s.writeError(w, http.StatusBadRequest, "invalid ip address")
		return "", "", false
	}
	return normalized, ip, true
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mac, ip, ok := s.deviceParams(w, req.MAC, req.IP)
	if !ok {
		return
	}
	as := s.engine.Evaluate(r.Context(), mac, ip)
	s.writeJSON(w, http.StatusOK, viewOf(as))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mac, ip, ok := s.deviceParams(w, req.MAC, req.IP)
	if !ok {
		return
	}
	sourceAddr := req.SourceAddr
	if sourceAddr == "" {
		sourceAddr = r.RemoteAddr
	}

	as, sess, err := s.engine.Connect(r.Context(), mac, ip, sourceAddr)
	if err != nil {
		s.logger.Error("opening session", "mac", mac, "err", err)
		s.writeError(w, http.StatusInternalServerError, "could not open session")
		return
	}
	view := viewOf(as)
	view.SessionID = sess.ID
	if !as.Decision.Admit {
		// 200, not an error: "connection limit reached" is a
		// legitimate answer the portal renders.
		s.writeJSON(w, http.StatusOK, view)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil || req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alive, err := s.engine.Keepalive(req.SessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "keepalive failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"alive": alive})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil || req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.Disconnect(req.SessionID); err != nil {
		s.writeError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	mac, ip, ok := s.deviceParams(w, r.URL.Query().Get("mac"), r.URL.Query().Get("ip"))
	if !ok {
		return
	}
	as := s.engine.Evaluate(r.Context(), mac, ip)
	s.writeJSON(w, http.StatusOK, viewOf(as))
}
