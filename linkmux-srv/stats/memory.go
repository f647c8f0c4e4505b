package stats

import (
	"context"
	"sync"
	"time"

	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

const maxRecentErrors = 100

// MemoryCollector keeps statistics in process memory using lock-free
// counters. It is the default backend: cheap enough to leave on, gone on
// restart.
type MemoryCollector struct {
	counters *AtomicCounters
	nextID   AtomicInt64Counter

	mu           sync.Mutex
	snapshots    map[string]netiface.Snapshot
	recentErrors []ErrorInfo
}

// NewMemoryCollector creates a new in-memory statistics collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		counters:  NewAtomicCounters(),
		snapshots: make(map[string]netiface.Snapshot),
	}
}

func (m *MemoryCollector) StartSession(_ context.Context, _, _, _ string, _ int, _ string) (int64, error) {
	m.counters.TotalSessions.Add(1)
	m.counters.ActiveSessions.Add(1)
	return m.nextID.Add(1), nil
}

func (m *MemoryCollector) EndSession(_ context.Context, _ int64, bytesClientToRemote, bytesRemoteToClient int64, _ time.Duration, _ string) error {
	m.counters.ActiveSessions.Add(-1)
	m.counters.BytesClientToRemote.Add(bytesClientToRemote)
	m.counters.BytesRemoteToClient.Add(bytesRemoteToClient)
	return nil
}

func (m *MemoryCollector) RecordError(_ context.Context, sessionID int64, errorType, errorMessage string) error {
	m.counters.TotalErrors.Add(1)
	switch errorType {
	case "connect_failed":
		m.counters.ConnectFailures.Add(1)
	case "parse_error":
		m.counters.ParseErrors.Add(1)
	case "forward_timeout":
		m.counters.ForwardTimeouts.Add(1)
	case "forward_reset":
		m.counters.ForwardResets.Add(1)
	}

	m.mu.Lock()
	m.recentErrors = append(m.recentErrors, ErrorInfo{
		SessionID:    sessionID,
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		Timestamp:    time.Now(),
	})
	if len(m.recentErrors) > maxRecentErrors {
		m.recentErrors = m.recentErrors[len(m.recentErrors)-maxRecentErrors:]
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCollector) RecordInterfaceSnapshot(_ context.Context, snap netiface.Snapshot) error {
	m.mu.Lock()
	m.snapshots[snap.IP] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryCollector) HealthCheck(_ context.Context) error {
	return nil
}

func (m *MemoryCollector) Close() error {
	return nil
}

// Counters returns a snapshot of the session counters.
func (m *MemoryCollector) Counters() CounterSnapshot {
	return m.counters.Snapshot()
}

// InterfaceSnapshots returns the most recent snapshot recorded per
// interface IP.
func (m *MemoryCollector) InterfaceSnapshots() []netiface.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]netiface.Snapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	return out
}

// RecentErrors returns up to the last maxRecentErrors recorded errors.
func (m *MemoryCollector) RecentErrors() []ErrorInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ErrorInfo, len(m.recentErrors))
	copy(out, m.recentErrors)
	return out
}
