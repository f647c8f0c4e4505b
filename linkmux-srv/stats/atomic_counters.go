package stats

import (
	"sync/atomic"
)

// AtomicInt64Counter is a lock-free 64-bit integer counter
type AtomicInt64Counter int64

// Add atomically adds delta to the counter and returns the new value
func (c *AtomicInt64Counter) Add(delta int64) int64 {
	return atomic.AddInt64((*int64)(c), delta)
}

// Load atomically loads the current value
func (c *AtomicInt64Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Store atomically stores the value
func (c *AtomicInt64Counter) Store(value int64) {
	atomic.StoreInt64((*int64)(c), value)
}

// Swap atomically swaps the old value with new and returns the old value
func (c *AtomicInt64Counter) Swap(new int64) int64 {
	return atomic.SwapInt64((*int64)(c), new)
}

// Reset atomically resets the counter to 0 and returns the previous value
func (c *AtomicInt64Counter) Reset() int64 {
	return c.Swap(0)
}

// AtomicCounters holds the session-level counters the in-memory collector
// maintains.
type AtomicCounters struct {
	TotalSessions       AtomicInt64Counter
	ActiveSessions      AtomicInt64Counter
	TotalErrors         AtomicInt64Counter
	ConnectFailures     AtomicInt64Counter
	ParseErrors         AtomicInt64Counter
	ForwardTimeouts     AtomicInt64Counter
	ForwardResets       AtomicInt64Counter
	BytesClientToRemote AtomicInt64Counter
	BytesRemoteToClient AtomicInt64Counter
}

// NewAtomicCounters creates a new set of atomic counters
func NewAtomicCounters() *AtomicCounters {
	return &AtomicCounters{}
}

// Snapshot returns a copy of all counter values
func (a *AtomicCounters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		TotalSessions:       a.TotalSessions.Load(),
		ActiveSessions:      a.ActiveSessions.Load(),
		TotalErrors:         a.TotalErrors.Load(),
		ConnectFailures:     a.ConnectFailures.Load(),
		ParseErrors:         a.ParseErrors.Load(),
		ForwardTimeouts:     a.ForwardTimeouts.Load(),
		ForwardResets:       a.ForwardResets.Load(),
		BytesClientToRemote: a.BytesClientToRemote.Load(),
		BytesRemoteToClient: a.BytesRemoteToClient.Load(),
	}
}

// ResetAll resets all counters to 0 and returns the previous values
func (a *AtomicCounters) ResetAll() CounterSnapshot {
	return CounterSnapshot{
		TotalSessions:       a.TotalSessions.Reset(),
		ActiveSessions:      a.ActiveSessions.Reset(),
		TotalErrors:         a.TotalErrors.Reset(),
		ConnectFailures:     a.ConnectFailures.Reset(),
		ParseErrors:         a.ParseErrors.Reset(),
		ForwardTimeouts:     a.ForwardTimeouts.Reset(),
		ForwardResets:       a.ForwardResets.Reset(),
		BytesClientToRemote: a.BytesClientToRemote.Reset(),
		BytesRemoteToClient: a.BytesRemoteToClient.Reset(),
	}
}

// CounterSnapshot represents a snapshot of counter values
type CounterSnapshot struct {
	TotalSessions       int64
	ActiveSessions      int64
	TotalErrors         int64
	ConnectFailures     int64
	ParseErrors         int64
	ForwardTimeouts     int64
	ForwardResets       int64
	BytesClientToRemote int64
	BytesRemoteToClient int64
}

// Add adds another snapshot to this one
func (s *CounterSnapshot) Add(other CounterSnapshot) {
	s.TotalSessions += other.TotalSessions
	s.ActiveSessions += other.ActiveSessions
	s.TotalErrors += other.TotalErrors
	s.ConnectFailures += other.ConnectFailures
	s.ParseErrors += other.ParseErrors
	s.ForwardTimeouts += other.ForwardTimeouts
	s.ForwardResets += other.ForwardResets
	s.BytesClientToRemote += other.BytesClientToRemote
	s.BytesRemoteToClient += other.BytesRemoteToClient
}
