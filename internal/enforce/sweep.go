// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package enforce

import (
	"context"
	"time"

	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/fwrule"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/metrics"
	"github.com/piso-net/bantay/internal/store"
	"github.com/piso-net/bantay/internal/tracker"
)

// Sweeper is the periodic maintenance loop: expire idle sessions,
// remove lapsed firewall rules, trim the traffic audit log. Every
// cycle re-reads the configuration snapshot, so tuning changes take
// effect without a restart. Each sweep operation is idempotent and
// safe to interleave with the live request path.
type Sweeper struct {
	provider *config.SecurityProvider
	tracker  *tracker.Tracker
	rules    *fwrule.Manager
	store    *store.Store
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. Call Start to begin the loop.
func NewSweeper(provider *config.SecurityProvider, tr *tracker.Tracker, rules *fwrule.Manager,
	st *store.Store, clk clock.Clock, m *metrics.Metrics, logger *logging.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.WithComponent("sweep")
	}
	if m == nil {
		m = metrics.New()
	}
	return &Sweeper{
		provider: provider,
		tracker:  tr,
		rules:    rules,
		store:    st,
		clock:    clk,
		metrics:  m,
		logger:   logger,
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.logger.Info("starting maintenance sweep", "interval", s.provider.Current().SweepInterval)
	go s.loop(ctx)
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("maintenance sweep stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	sec, version := s.provider.Snapshot()
	ticker := time.NewTicker(sec.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, nextVersion := s.provider.Snapshot()
			if nextVersion != version && next.SweepInterval != sec.SweepInterval {
				ticker.Reset(next.SweepInterval)
			}
			sec, version = next, nextVersion
			s.RunOnce(ctx, sec)
		}
	}
}

// SweepStats summarizes one cycle for the cleanup endpoint.
type SweepStats struct {
	SessionsExpired int64 `json:"sessions_expired"`
	RulesRemoved    int   `json:"rules_removed"`
	RulesFailed     int   `json:"rules_failed"`
	TrafficTrimmed  int64 `json:"traffic_trimmed"`
}

// RunOnce executes a single sweep cycle. One subsystem's failure never
// blocks the others.
func (s *Sweeper) RunOnce(ctx context.Context, sec config.Security) SweepStats {
	var stats SweepStats
	now := s.clock.Now()

	expired, err := s.tracker.SweepExpired(sec.SessionIdleTimeout)
	if err != nil {
		s.logger.Error("sweep: expiring sessions", "err", err)
	}
	stats.SessionsExpired = expired

	res, err := s.rules.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("sweep: removing expired rules", "err", err)
	}
	stats.RulesRemoved = res.Removed
	stats.RulesFailed = res.Failed
	s.metrics.RulesExpired.Add(float64(res.Removed))
	s.metrics.RulesFailed.Add(float64(res.Failed))

	trimmed, err := s.store.CleanupTraffic(now.Add(-sec.TrafficRetention))
	if err != nil {
		s.logger.Error("sweep: trimming traffic log", "err", err)
	}
	stats.TrafficTrimmed = trimmed

	if active, err := s.store.CountAllActiveSessions(now.Add(-sec.SessionIdleTimeout)); err == nil {
		s.metrics.ActiveSessions.Set(float64(active))
	}

	s.metrics.SweepRuns.Inc()
	if stats.SessionsExpired > 0 || stats.RulesRemoved > 0 || stats.RulesFailed > 0 || stats.TrafficTrimmed > 0 {
		s.logger.Info("sweep cycle complete",
			"sessions_expired", stats.SessionsExpired,
			"rules_removed", stats.RulesRemoved,
			"rules_failed", stats.RulesFailed,
			"traffic_trimmed", stats.TrafficTrimmed)
	}
	return stats
}
