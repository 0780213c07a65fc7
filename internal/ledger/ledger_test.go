// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piso-net/bantay/internal/clock"
	"github.com/piso-net/bantay/internal/store"
)

const mac = "aa:bb:cc:dd:ee:ff"

func newTestLedger(t *testing.T) (*Ledger, *clock.Fake) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	clk := clock.NewFake(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	return New(st, clk, nil), clk
}

func TestRecordViolationIncrementsWithinWindow(t *testing.T) {
	l, clk := newTestLedger(t)

	for want := 1; want <= 5; want++ {
		n, err := l.RecordViolation(mac)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		clk.Advance(time.Hour)
	}

	n, err := l.Count(mac)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l, clk := newTestLedger(t)

	n, err := l.RecordViolation(mac)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = l.RecordViolation(mac)
	require.NoError(t, err)

	// The window is anchored at the first increment: 23h59m later it
	// still counts, a full 24h later it does not.
	clk.Advance(DefaultWindow - time.Minute)
	n, err = l.Count(mac)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clk.Advance(time.Minute)
	n, err = l.Count(mac)
	require.NoError(t, err)
	assert.Zero(t, n)

	// First event after expiry restarts at 1 with a fresh anchor.
	n, err = l.RecordViolation(mac)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReset(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.RecordViolation(mac)
	require.NoError(t, err)
	require.NoError(t, l.Reset(mac))

	n, err := l.Count(mac)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountUnknownDevice(t *testing.T) {
	l, _ := newTestLedger(t)
	n, err := l.Count("11:22:33:44:55:66")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentViolationsNotLost(t *testing.T) {
	l, _ := newTestLedger(t)
	const events = 40

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordViolation(mac)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := l.Count(mac)
	require.NoError(t, err)
	assert.Equal(t, events, n)
}
