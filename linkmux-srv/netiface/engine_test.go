package netiface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, ifaces ...*Interface) *Engine {
	t.Helper()
	engine, err := NewEngine(ifaces)
	require.NoError(t, err)
	return engine
}

func TestNewEngineRequiresInterfaces(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)
}

func TestNewEngineDuplicatesSingleInterface(t *testing.T) {
	engine := newTestEngine(t, NewInterface("eth0", "10.0.0.2"))

	require.Len(t, engine.Interfaces(), 2)
	assert.Equal(t, "10.0.0.2", engine.Interfaces()[0].IP)
	assert.Equal(t, "10.0.0.2", engine.Interfaces()[1].IP)
	// Distinct records: counters stay per-slot.
	assert.NotSame(t, engine.Interfaces()[0], engine.Interfaces()[1])
}

func TestRoundRobinSelection(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	counts := map[string]int{}
	for i := 0; i < 8; i++ {
		iface, err := engine.BestInterface()
		require.NoError(t, err)
		counts[iface.IP]++
		// Strict alternation with two healthy interfaces.
		if i%2 == 0 {
			assert.Equal(t, a.IP, iface.IP)
		} else {
			assert.Equal(t, b.IP, iface.IP)
		}
	}
	assert.Equal(t, 4, counts[a.IP])
	assert.Equal(t, 4, counts[b.IP])
}

func TestLinkLocalRejected(t *testing.T) {
	engine := newTestEngine(t, NewInterface("eth0", "169.254.1.2"))

	_, err := engine.BestInterface()
	assert.ErrorIs(t, err, ErrNoValidInterfaces)
}

func TestLinkLocalFilteredFromCandidates(t *testing.T) {
	a := NewInterface("eth0", "169.254.1.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	for i := 0; i < 4; i++ {
		iface, err := engine.BestInterface()
		require.NoError(t, err)
		assert.Equal(t, b.IP, iface.IP)
	}
}

func TestMarkFailedBelowThreshold(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	engine.MarkFailed(a, "connection refused")

	assert.Equal(t, StatusDegraded, a.Status())
	assert.Equal(t, 1, engine.ConsecutiveFailures(a.IP))
	assert.Equal(t, int64(1), a.FailedRequests())
	_, quarantined := engine.QuarantinedSince(a.IP)
	assert.False(t, quarantined)
}

func TestMarkFailedQuarantinesAtThreshold(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	for i := 0; i < MaxConsecutiveFailures; i++ {
		engine.MarkFailed(a, "connection refused")
	}

	assert.Equal(t, StatusFailed, a.Status())
	_, quarantined := engine.QuarantinedSince(a.IP)
	assert.True(t, quarantined)
	// Counter resets when the interface transitions into quarantine.
	assert.Equal(t, 0, engine.ConsecutiveFailures(a.IP))
}

func TestQuarantinedInterfaceSkipped(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	for i := 0; i < MaxConsecutiveFailures; i++ {
		engine.MarkFailed(a, "timeout")
	}

	for i := 0; i < 4; i++ {
		iface, err := engine.BestInterface()
		require.NoError(t, err)
		assert.Equal(t, b.IP, iface.IP)
	}
}

func TestQuarantineExpiresLazily(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	base := time.Now()
	engine.now = func() time.Time { return base }

	for i := 0; i < MaxConsecutiveFailures; i++ {
		engine.MarkFailed(a, "timeout")
	}

	// Exactly at the timeout the interface is still excluded.
	engine.now = func() time.Time { return base.Add(FailureTimeout) }
	iface, err := engine.BestInterface()
	require.NoError(t, err)
	assert.Equal(t, b.IP, iface.IP)

	// Just past the timeout the stale entry is evicted on selection.
	engine.now = func() time.Time { return base.Add(FailureTimeout + time.Millisecond) }
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		iface, err := engine.BestInterface()
		require.NoError(t, err)
		seen[iface.IP] = true
	}
	assert.True(t, seen[a.IP])
	_, quarantined := engine.QuarantinedSince(a.IP)
	assert.False(t, quarantined)
}

func TestPanicResetWhenAllQuarantined(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	for i := 0; i < MaxConsecutiveFailures; i++ {
		engine.MarkFailed(a, "down")
	}
	for i := 0; i < MaxConsecutiveFailures; i++ {
		engine.MarkFailed(b, "down")
	}
	_, aQuarantined := engine.QuarantinedSince(a.IP)
	_, bQuarantined := engine.QuarantinedSince(b.IP)
	require.True(t, aQuarantined)
	require.True(t, bQuarantined)

	// One extra failure so the consecutive map is non-empty too.
	engine.MarkFailed(a, "down")
	require.Equal(t, 1, engine.ConsecutiveFailures(a.IP))

	iface, err := engine.BestInterface()
	require.NoError(t, err)
	assert.Equal(t, a.IP, iface.IP)

	_, aQuarantined = engine.QuarantinedSince(a.IP)
	_, bQuarantined = engine.QuarantinedSince(b.IP)
	assert.False(t, aQuarantined)
	assert.False(t, bQuarantined)
	assert.Equal(t, 0, engine.ConsecutiveFailures(a.IP))
	assert.Equal(t, 0, engine.ConsecutiveFailures(b.IP))
}

func TestRecoveryAfterSuccess(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	engine.MarkFailed(a, "refused")
	engine.MarkFailed(a, "refused")
	require.Equal(t, 2, engine.ConsecutiveFailures(a.IP))

	// A successful session does not rewrite status, but keeps the
	// interface selectable; only quarantine entry would exclude it.
	a.MarkSuccess()
	assert.Equal(t, StatusDegraded, a.Status())

	iface, err := engine.BestInterface()
	require.NoError(t, err)
	assert.Equal(t, a.IP, iface.IP)
}

func TestMaybeReportStatsInterval(t *testing.T) {
	a := NewInterface("eth0", "10.0.0.2")
	b := NewInterface("eth1", "10.0.0.3")
	engine := newTestEngine(t, a, b)

	base := time.Now()
	engine.now = func() time.Time { return base }
	engine.lastStatsReport = base

	assert.Nil(t, engine.MaybeReportStats())

	engine.now = func() time.Time { return base.Add(StatsInterval) }
	snaps := engine.MaybeReportStats()
	require.Len(t, snaps, 2)

	// A second call within the interval stays quiet.
	assert.Nil(t, engine.MaybeReportStats())
}
