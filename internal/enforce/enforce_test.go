// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package enforce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piso-net/bantay/internal/admission"
	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/fwrule"
	"github.com/piso-net/bantay/internal/ledger"
	"github.com/piso-net/bantay/internal/metrics"
	"github.com/piso-net/bantay/internal/store"
	"github.com/piso-net/bantay/internal/tracker"
)

const (
	testMAC = "aa:bb:cc:dd:ee:ff"
	testIP  = "192.168.10.23"
)

type fakeProber struct {
	ttl int
	err error
}

func (p *fakeProber) Probe(ctx context.Context, ip string) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.ttl, nil
}

type fakeBackend struct {
	installs   int
	installErr error
	live       map[string]bool
}

func (f *fakeBackend) InstallTTLRule(ctx context.Context, mac string, ttl int) (string, error) {
	f.installs++
	if f.installErr != nil {
		return "", f.installErr
	}
	f.live[mac] = true
	return "ip bantay forward ether saddr " + mac + " ip ttl set 1", nil
}

func (f *fakeBackend) RemoveTTLRule(ctx context.Context, descriptor string) error {
	for mac := range f.live {
		delete(f.live, mac)
	}
	return nil
}

func (f *fakeBackend) FlushMAC(ctx context.Context, mac string) error {
	delete(f.live, mac)
	return nil
}

type harness struct {
	engine  *Engine
	sweeper *Sweeper
	prober  *fakeProber
	backend *fakeBackend
	store   *store.Store
	clock   *clock.Fake
	sec     config.Security
}

func newHarness(t *testing.T, mutate func(*config.Security)) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sec := config.DefaultSecurity()
	sec.ViolationThreshold = 3
	sec.TTLEnforcementEnabled = true
	if mutate != nil {
		mutate(&sec)
	}
	provider := config.NewSecurityProvider(sec)

	prober := &fakeProber{ttl: sec.ExpectedTTL}
	classifier := classify.New(prober, NewTrafficRecorder(st, clk), nil)
	tr := tracker.New(st, clk, nil)
	ld := ledger.New(st, clk, nil)
	adm := admission.New(classifier, tr, ld, nil)
	backend := &fakeBackend{live: map[string]bool{}}
	rules := fwrule.NewManager(st, backend, clk, nil)
	m := metrics.New()

	return &harness{
		engine:  New(provider, adm, tr, ld, rules, m, nil),
		sweeper: NewSweeper(provider, tr, rules, st, clk, m, nil),
		prober:  prober,
		backend: backend,
		store:   st,
		clock:   clk,
		sec:     sec,
	}
}

func TestNormalDeviceStaysUnrestricted(t *testing.T) {
	h := newHarness(t, nil)

	as := h.engine.Evaluate(context.Background(), testMAC, testIP)
	assert.True(t, as.Decision.Admit)
	assert.Equal(t, Unrestricted, as.State)
	assert.Equal(t, "Normal TTL", as.StatusText)
	assert.Zero(t, h.backend.installs)
}

func TestOpenSessionMovesToLimitedNormal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	as, sess, err := h.engine.Connect(ctx, testMAC, testIP, "192.168.10.23:51000")
	require.NoError(t, err)
	require.True(t, as.Decision.Admit)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, as.Decision.Current)

	as = h.engine.Evaluate(ctx, testMAC, testIP)
	assert.Equal(t, LimitedNormal, as.State)
}

func TestSuspiciousBelowThresholdStaysLimited(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.ttl = 60 // one hop below the 64±2 baseline

	as := h.engine.Evaluate(context.Background(), testMAC, testIP)
	assert.Equal(t, LimitedSuspicious, as.State)
	assert.Equal(t, "TTL Warning: sharing detected", as.StatusText)
	assert.Equal(t, h.sec.SuspiciousDeviceLimit, as.Decision.Limit)
	assert.Equal(t, 1, as.Decision.ViolationCount)
	assert.Zero(t, h.backend.installs)
}

func TestThresholdEscalatesToNetworkBlocked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.prober.ttl = 60

	var as Assessment
	for i := 0; i < h.sec.ViolationThreshold; i++ {
		as = h.engine.Evaluate(ctx, testMAC, testIP)
	}
	assert.Equal(t, NetworkBlocked, as.State)
	assert.Contains(t, as.StatusText, "Network-Level Enforcement Active")
	assert.Contains(t, as.StatusText, "expires")
	require.True(t, as.HasRule)
	assert.Equal(t, store.RuleActive, as.Rule.Status)
	assert.Equal(t, h.sec.ViolationThreshold, as.Rule.ViolationCount)
	assert.Equal(t, 1, h.backend.installs)

	// Further evaluations do not reinstall.
	as = h.engine.Evaluate(ctx, testMAC, testIP)
	assert.Equal(t, NetworkBlocked, as.State)
	assert.Equal(t, 1, h.backend.installs)
}

func TestLayer2DisabledNeverEscalates(t *testing.T) {
	h := newHarness(t, func(sec *config.Security) {
		sec.TTLEnforcementEnabled = false
	})
	ctx := context.Background()
	h.prober.ttl = 60

	var as Assessment
	for i := 0; i < 10; i++ {
		as = h.engine.Evaluate(ctx, testMAC, testIP)
	}
	assert.Equal(t, LimitedSuspicious, as.State)
	assert.Zero(t, h.backend.installs)
}

func TestEscalationFailureDegradesToLayer1(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.prober.ttl = 60
	h.backend.installErr = errors.New(errors.KindPermission, "operation not permitted")

	var as Assessment
	for i := 0; i < h.sec.ViolationThreshold; i++ {
		as = h.engine.Evaluate(ctx, testMAC, testIP)
	}
	// The device stays under the suspicious session cap; the failed
	// record is visible but not a live rule.
	assert.Equal(t, LimitedSuspicious, as.State)
	assert.Equal(t, h.sec.SuspiciousDeviceLimit, as.Decision.Limit)
	require.True(t, as.HasRule)
	assert.Equal(t, store.RuleError, as.Rule.Status)
}

func TestRuleExpiryResetsLedger(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.prober.ttl = 60

	for i := 0; i < h.sec.ViolationThreshold; i++ {
		h.engine.Evaluate(ctx, testMAC, testIP)
	}
	count, err := h.engine.Ledger().Count(testMAC)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, h.sec.ViolationThreshold)

	h.clock.Advance(h.sec.RuleDuration + time.Minute)
	stats := h.sweeper.RunOnce(ctx, h.sec)
	assert.Equal(t, 1, stats.RulesRemoved)

	count, err = h.engine.Ledger().Count(testMAC)
	require.NoError(t, err)
	assert.Zero(t, count, "ledger must reset when the rule leaves the kernel")

	// Back to normal classification: the device recovers fully.
	h.prober.ttl = 64
	as := h.engine.Evaluate(ctx, testMAC, testIP)
	assert.Equal(t, Unrestricted, as.State)
	assert.Equal(t, "Normal TTL", as.StatusText)
}

func TestOperatorDeactivateResetsLedger(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.prober.ttl = 60

	for i := 0; i < h.sec.ViolationThreshold; i++ {
		h.engine.Evaluate(ctx, testMAC, testIP)
	}

	rec, found, err := h.engine.Deactivate(ctx, testMAC)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.RuleDisabled, rec.Status)

	count, err := h.engine.Ledger().Count(testMAC)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProbeFailureNeverDowngrades(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.prober.err = errors.New(errors.KindSampling, "no echo reply")
	as := h.engine.Evaluate(ctx, testMAC, testIP)
	assert.True(t, as.Decision.Admit)
	assert.Equal(t, classify.Unknown, as.Decision.Classification)
	assert.Equal(t, h.sec.NormalDeviceLimit, as.Decision.Limit)
	assert.Zero(t, as.Decision.ViolationCount)

	// No audit row is written for a failed probe.
	entries, err := h.store.ListTraffic(testMAC, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConnectDeniedRegistersNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.prober.ttl = 60 // suspicious cap is 1

	_, sess, err := h.engine.Connect(ctx, testMAC, testIP, "192.168.10.23:51000")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	as, sess, err := h.engine.Connect(ctx, testMAC, testIP, "192.168.10.23:51001")
	require.NoError(t, err)
	assert.False(t, as.Decision.Admit)
	assert.Empty(t, sess.ID)

	n, err := h.engine.Tracker().CountActive(testMAC, h.sec.SessionIdleTimeout)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeepaliveAndDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, sess, err := h.engine.Connect(ctx, testMAC, testIP, "192.168.10.23:51000")
	require.NoError(t, err)

	ok, err := h.engine.Keepalive(sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.engine.Disconnect(sess.ID))
	ok, err = h.engine.Keepalive(sess.ID)
	require.NoError(t, err)
	assert.False(t, ok, "keepalive on a closed session signals reconnect")
}

func TestSweepTrimsSessionsAndTraffic(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, _, err := h.engine.Connect(ctx, testMAC, testIP, "192.168.10.23:51000")
	require.NoError(t, err)

	h.clock.Advance(h.sec.SessionIdleTimeout + time.Minute)
	stats := h.sweeper.RunOnce(ctx, h.sec)
	assert.Equal(t, int64(1), stats.SessionsExpired)

	h.clock.Advance(h.sec.TrafficRetention)
	stats = h.sweeper.RunOnce(ctx, h.sec)
	assert.Equal(t, int64(1), stats.TrafficTrimmed)
}

func TestStateStrings(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{Unrestricted, "unrestricted"},
		{LimitedNormal, "limited_normal"},
		{LimitedSuspicious, "limited_suspicious"},
		{NetworkBlocked, "network_blocked"},
		{State(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}
