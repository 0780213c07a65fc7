// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piso-net/bantay/internal/classify"
	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/ledger"
	"github.com/piso-net/bantay/internal/store"
	"github.com/piso-net/bantay/internal/tracker"
)

const (
	mac = "aa:bb:cc:dd:ee:ff"
	ip  = "192.168.1.20"
)

type stubProber struct {
	ttl int
	err error
}

func (s *stubProber) Probe(ctx context.Context, addr string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.ttl, nil
}

type fixture struct {
	ctrl    *Controller
	tracker *tracker.Tracker
	ledger  *ledger.Ledger
	prober  *stubProber
	sec     config.Security
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	prober := &stubProber{ttl: 64}
	tr := tracker.New(st, clk, nil)
	ld := ledger.New(st, clk, nil)
	cl := classify.New(prober, nil, nil)

	return &fixture{
		ctrl:    New(cl, tr, ld, nil),
		tracker: tr,
		ledger:  ld,
		prober:  prober,
		sec:     config.DefaultSecurity(),
	}
}

func TestNormalDeviceAdmittedUpToCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Example: TTL 64, tolerance 2, cap 3. Three sessions admitted,
	// the fourth attempt is denied with current=3, limit=3.
	for i := 0; i < 3; i++ {
		dec := f.ctrl.CanAdmit(ctx, f.sec, mac, ip)
		require.True(t, dec.Admit, "attempt %d", i+1)
		assert.Equal(t, classify.Normal, dec.Classification)
		assert.Equal(t, i, dec.Current)
		assert.Equal(t, 3, dec.Limit)

		_, err := f.tracker.Register(mac, ip, dec.Classification)
		require.NoError(t, err)
	}

	dec := f.ctrl.CanAdmit(ctx, f.sec, mac, ip)
	assert.False(t, dec.Admit)
	assert.Equal(t, 3, dec.Current)
	assert.Equal(t, 3, dec.Limit)
}

func TestSuspiciousDeviceGetsLowerCapAndViolation(t *testing.T) {
	f := newFixture(t)
	f.prober.ttl = 61 // one extra hop below 64±2

	dec := f.ctrl.CanAdmit(context.Background(), f.sec, mac, ip)
	assert.True(t, dec.Admit)
	assert.Equal(t, classify.Suspicious, dec.Classification)
	assert.Equal(t, 1, dec.Limit)
	assert.Equal(t, 1, dec.ViolationCount)

	n, err := f.ledger.Count(mac)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestViolationAccruesEvenWhenDenied(t *testing.T) {
	f := newFixture(t)
	f.prober.ttl = 61

	_, err := f.tracker.Register(mac, ip, classify.Suspicious)
	require.NoError(t, err)

	// Device is at its suspicious cap of 1: denied, but the violation
	// still counts.
	for i := 1; i <= 3; i++ {
		dec := f.ctrl.CanAdmit(context.Background(), f.sec, mac, ip)
		assert.False(t, dec.Admit)
		assert.Equal(t, i, dec.ViolationCount)
	}
}

func TestUnknownClassificationUsesNormalCap(t *testing.T) {
	f := newFixture(t)
	f.prober.err = errors.New(errors.KindSampling, "probe timed out")

	dec := f.ctrl.CanAdmit(context.Background(), f.sec, mac, ip)
	assert.True(t, dec.Admit)
	assert.Equal(t, classify.Unknown, dec.Classification)
	assert.Equal(t, f.sec.NormalDeviceLimit, dec.Limit)
	assert.False(t, dec.Sampled)

	// Unknown never counts as a violation.
	n, err := f.ledger.Count(mac)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDenialDoesNotMutateTracker(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.tracker.Register(mac, ip, classify.Normal)
		require.NoError(t, err)
	}

	before, err := f.tracker.CountActive(mac, f.sec.SessionIdleTimeout)
	require.NoError(t, err)

	dec := f.ctrl.CanAdmit(context.Background(), f.sec, mac, ip)
	assert.False(t, dec.Admit)

	after, err := f.tracker.CountActive(mac, f.sec.SessionIdleTimeout)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
