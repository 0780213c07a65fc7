// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api is the HTTP boundary: the portal endpoints the
// captive-portal frontend calls on every connection event, and the
// operator endpoints behind /api/security. The engine never renders
// anything; every response here is JSON for someone else's UI.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piso-net/bantay/internal/enforce"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/store"
)

// Server handles portal and operator requests.
type Server struct {
	engine  *enforce.Engine
	sweeper *enforce.Sweeper
	store   *store.Store
	logger  *logging.Logger
	mux     *http.ServeMux
	httpSrv *http.Server
}

// Options holds server dependencies.
type Options struct {
	Engine  *enforce.Engine
	Sweeper *enforce.Sweeper
	Store   *store.Store
	Logger  *logging.Logger
	// Registry serves /metrics. Nil falls back to the default
	// prometheus registry.
	Registry *prometheus.Registry
}

// NewServer builds the server and its routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	s := &Server{
		engine:  opts.Engine,
		sweeper: opts.Sweeper,
		store:   opts.Store,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /portal/admit", s.handleAdmit)
	s.mux.HandleFunc("POST /portal/connect", s.handleConnect)
	s.mux.HandleFunc("POST /portal/keepalive", s.handleKeepalive)
	s.mux.HandleFunc("POST /portal/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("GET /portal/status", s.handleStatus)

	s.mux.HandleFunc("GET /api/security/violations", s.handleListViolations)
	s.mux.HandleFunc("GET /api/security/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/security/rules", s.handleListRules)
	s.mux.HandleFunc("GET /api/security/traffic", s.handleListTraffic)
	s.mux.HandleFunc("GET /api/security/config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /api/security/config", s.handlePutConfig)
	s.mux.HandleFunc("POST /api/security/rules/{mac}/activate", s.handleActivateRule)
	s.mux.HandleFunc("POST /api/security/rules/{mac}/deactivate", s.handleDeactivateRule)
	s.mux.HandleFunc("POST /api/security/rules/{mac}/force-remove", s.handleForceRemoveRule)
	s.mux.HandleFunc("POST /api/security/violations/{mac}/reset", s.handleResetViolations)
	s.mux.HandleFunc("POST /api/security/cleanup", s.handleCleanup)

	if opts.Registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	} else {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s
}

// Handler returns the route tree for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving HTTP on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
