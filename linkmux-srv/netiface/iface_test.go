package netiface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateStatsMovingAverage(t *testing.T) {
	iface := NewInterface("eth0", "10.0.0.2")

	iface.UpdateStats(100, 2*time.Second)
	assert.Equal(t, int64(1), iface.TotalRequests())
	assert.Equal(t, 2*time.Second, iface.AvgResponseTime())

	iface.UpdateStats(50, 4*time.Second)
	assert.Equal(t, int64(2), iface.TotalRequests())
	assert.Equal(t, 3*time.Second, iface.AvgResponseTime())

	assert.Equal(t, int64(150), iface.BytesSent())
}

func TestSuccessRate(t *testing.T) {
	iface := NewInterface("eth0", "10.0.0.2")

	// No outcomes yet: rate must be 0, not NaN.
	assert.Equal(t, 0.0, iface.SuccessRate())

	iface.MarkSuccess()
	iface.MarkSuccess()
	iface.MarkSuccess()
	iface.MarkFailed()

	assert.InDelta(t, 75.0, iface.SuccessRate(), 0.001)
}

func TestCounterInvariant(t *testing.T) {
	iface := NewInterface("eth0", "10.0.0.2")

	iface.MarkSuccess()
	iface.MarkFailed()
	iface.UpdateStats(10, time.Second)

	// update-stats bumps only total_requests, so the sum of outcomes stays
	// at or below the total.
	sum := iface.SuccessfulRequests() + iface.FailedRequests()
	assert.LessOrEqual(t, sum, iface.TotalRequests())
	assert.Equal(t, int64(3), iface.TotalRequests())
}

func TestMarkFailedStampsFailureTime(t *testing.T) {
	iface := NewInterface("eth0", "10.0.0.2")
	assert.True(t, iface.LastFailure().IsZero())

	before := time.Now()
	iface.MarkFailed()

	assert.False(t, iface.LastFailure().IsZero())
	assert.False(t, iface.LastFailure().Before(before))
}

func TestActiveConnectionsClampedAtZero(t *testing.T) {
	iface := NewInterface("eth0", "10.0.0.2")

	iface.DecActiveConnections()
	assert.Equal(t, int64(0), iface.ActiveConnections())

	iface.IncActiveConnections()
	iface.IncActiveConnections()
	iface.DecActiveConnections()
	assert.Equal(t, int64(1), iface.ActiveConnections())
}

func TestSnapshotCopiesCounters(t *testing.T) {
	iface := NewInterface("wlan0", "192.168.1.5")
	iface.MarkSuccess()
	iface.UpdateStats(2048, time.Second)
	iface.IncActiveConnections()

	snap := iface.Snapshot()
	assert.Equal(t, "wlan0", snap.Name)
	assert.Equal(t, "192.168.1.5", snap.IP)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
	assert.Equal(t, int64(2048), snap.BytesSent)
	assert.Equal(t, int64(1), snap.ActiveConnections)
}
