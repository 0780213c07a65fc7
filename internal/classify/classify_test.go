// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piso-net/bantay/internal/config"
	"github.com/piso-net/bantay/internal/errors"
)

type fakeProber struct {
	ttl    int
	err    error
	probes int
}

func (f *fakeProber) Probe(ctx context.Context, ip string) (int, error) {
	f.probes++
	if f.err != nil {
		return 0, f.err
	}
	return f.ttl, nil
}

type fakeRecorder struct {
	entries []struct {
		mac string
		ttl int
		c   Classification
	}
}

func (f *fakeRecorder) RecordObservation(mac string, ttl int, c Classification, note string) error {
	f.entries = append(f.entries, struct {
		mac string
		ttl int
		c   Classification
	}{mac, ttl, c})
	return nil
}

func secWith(expected, tolerance int) config.Security {
	sec := config.DefaultSecurity()
	sec.ExpectedTTL = expected
	sec.TTLTolerance = tolerance
	return sec
}

func TestFromTTL(t *testing.T) {
	sec := secWith(64, 2)
	tests := []struct {
		name    string
		ttl     int
		sampled bool
		want    Classification
	}{
		{"exact match", 64, true, Normal},
		{"low edge of tolerance", 62, true, Normal},
		{"high edge of tolerance", 66, true, Normal},
		{"one hop below", 63, true, Normal},
		{"shared, one extra hop", 61, true, Suspicious},
		{"windows client against linux baseline", 128, true, Suspicious},
		{"way low", 30, true, Suspicious},
		{"not sampled", 0, false, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromTTL(sec, tt.ttl, tt.sampled))
		})
	}
}

func TestFromTTLDetectionDisabled(t *testing.T) {
	sec := secWith(64, 2)
	sec.TTLDetectionEnabled = false
	assert.Equal(t, Normal, FromTTL(sec, 30, true))
	assert.Equal(t, Normal, FromTTL(sec, 0, false))
}

func TestObserveClassifiesAndRecords(t *testing.T) {
	prober := &fakeProber{ttl: 61}
	rec := &fakeRecorder{}
	c := New(prober, rec, nil)

	res := c.Observe(context.Background(), secWith(64, 2), "aa:bb:cc:dd:ee:ff", "192.168.1.20")

	assert.Equal(t, Suspicious, res.Classification)
	assert.Equal(t, 61, res.TTL)
	assert.Equal(t, 3, res.Deviation)
	assert.True(t, res.Sampled)
	if assert.Len(t, rec.entries, 1) {
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", rec.entries[0].mac)
		assert.Equal(t, Suspicious, rec.entries[0].c)
	}
}

func TestObserveProbeFailureDegradesToUnknown(t *testing.T) {
	prober := &fakeProber{err: errors.New(errors.KindSampling, "no reply")}
	rec := &fakeRecorder{}
	c := New(prober, rec, nil)

	res := c.Observe(context.Background(), secWith(64, 2), "aa:bb:cc:dd:ee:ff", "192.168.1.20")

	assert.Equal(t, Unknown, res.Classification)
	assert.False(t, res.Sampled)
	// Failed probes are not audit-logged as observations.
	assert.Empty(t, rec.entries)
}

func TestObserveDisabledSkipsProbe(t *testing.T) {
	prober := &fakeProber{ttl: 30}
	rec := &fakeRecorder{}
	c := New(prober, rec, nil)

	sec := secWith(64, 2)
	sec.TTLDetectionEnabled = false
	res := c.Observe(context.Background(), sec, "aa:bb:cc:dd:ee:ff", "192.168.1.20")

	assert.Equal(t, Normal, res.Classification)
	assert.Zero(t, prober.probes)
	assert.Empty(t, rec.entries)
}

func TestClassificationRoundTrip(t *testing.T) {
	for _, c := range []Classification{Unknown, Normal, Suspicious} {
		assert.Equal(t, c, Parse(c.String()))
	}
	assert.Equal(t, Unknown, Parse("garbage"))
}
