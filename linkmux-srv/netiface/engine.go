package netiface

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
)

// Selection and health thresholds.
const (
	// MaxConsecutiveFailures is the number of consecutive connect failures
	// after which an interface is quarantined.
	MaxConsecutiveFailures = 3
	// FailureTimeout is how long a quarantined interface stays unselectable.
	FailureTimeout = 5 * time.Second
	// StatsInterval is the minimum gap between statistics reports.
	StatsInterval = 30 * time.Second
)

// ErrNoValidInterfaces is returned when every configured interface is
// link-local and nothing can carry outbound traffic.
var ErrNoValidInterfaces = errors.New("no valid interfaces available")

// Engine owns interface selection and health state. All of its maps and the
// round-robin cursor are guarded by a single mutex; the mutation rate is low
// enough that finer locking buys nothing.
type Engine struct {
	mu                  sync.Mutex
	interfaces          []*Interface
	cursor              int
	quarantine          map[string]time.Time
	consecutiveFailures map[string]int
	lastStatsReport     time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a selection engine over the given interfaces. A single
// interface is duplicated as a distinct record so the round-robin still
// alternates (and the proxy works, just without real load balancing).
func NewEngine(interfaces []*Interface) (*Engine, error) {
	if len(interfaces) == 0 {
		return nil, errors.New("no interfaces configured")
	}
	if len(interfaces) == 1 {
		only := interfaces[0]
		interfaces = append(interfaces, NewInterface(only.Name, only.IP))
	}
	return &Engine{
		interfaces:          interfaces,
		quarantine:          make(map[string]time.Time),
		consecutiveFailures: make(map[string]int),
		now:                 time.Now,
	}, nil
}

// Interfaces returns the engine's interface list. The slice is owned by the
// engine and must not be modified.
func (e *Engine) Interfaces() []*Interface {
	return e.interfaces
}

// BestInterface returns the next interface in round-robin order that is
// neither link-local nor quarantined. Quarantine entries older than
// FailureTimeout are evicted lazily here. When every candidate is
// quarantined all health state is cleared and the first candidate is
// returned: liveness wins over strict health.
func (e *Engine) BestInterface() (*Interface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var candidates []*Interface
	for _, iface := range e.interfaces {
		if strings.HasPrefix(iface.IP, "169.254.") {
			continue
		}
		candidates = append(candidates, iface)
	}
	if len(candidates) == 0 {
		return nil, ErrNoValidInterfaces
	}

	for range candidates {
		iface := candidates[e.cursor%len(candidates)]
		e.cursor = (e.cursor + 1) % len(candidates)

		if !e.isQuarantinedLocked(iface.IP) {
			return iface, nil
		}
	}

	// Every candidate is quarantined: panic reset.
	logger.Warn("All interfaces quarantined; clearing health state and retrying")
	e.quarantine = make(map[string]time.Time)
	e.consecutiveFailures = make(map[string]int)
	return candidates[0], nil
}

// isQuarantinedLocked checks quarantine membership and evicts stale entries.
// Caller must hold e.mu.
func (e *Engine) isQuarantinedLocked(ip string) bool {
	enteredAt, ok := e.quarantine[ip]
	if !ok {
		return false
	}
	if e.now().Sub(enteredAt) > FailureTimeout {
		delete(e.quarantine, ip)
		return false
	}
	return true
}

// MarkFailed records a connect failure against iface. After
// MaxConsecutiveFailures in a row the interface is quarantined and marked
// FAILED; below the threshold it is marked DEGRADED.
func (e *Engine) MarkFailed(iface *Interface, errMsg string) {
	iface.MarkFailed()

	e.mu.Lock()
	e.consecutiveFailures[iface.IP]++
	failures := e.consecutiveFailures[iface.IP]

	if failures >= MaxConsecutiveFailures {
		e.quarantine[iface.IP] = e.now()
		e.consecutiveFailures[iface.IP] = 0
		e.mu.Unlock()

		iface.setStatus(StatusFailed)
		logger.Warn("Interface %s (%s) marked as FAILED:\n"+
			"  - Consecutive failures: %d\n"+
			"  - Last error: %s\n"+
			"  - Success rate: %.1f%%\n"+
			"  - Average response time: %s\n"+
			"Switching to backup interface...",
			iface.Name, iface.IP, failures, errMsg, iface.SuccessRate(), iface.AvgResponseTime())
		return
	}
	e.mu.Unlock()

	iface.setStatus(StatusDegraded)
	logger.Info("Interface %s degraded performance:\n"+
		"  - Failure count: %d/%d\n"+
		"  - Error: %s",
		iface.Name, failures, MaxConsecutiveFailures, errMsg)
}

// QuarantinedSince returns when ip entered quarantine, if it is there.
func (e *Engine) QuarantinedSince(ip string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.quarantine[ip]
	return t, ok
}

// ConsecutiveFailures returns the consecutive failure count for ip.
func (e *Engine) ConsecutiveFailures(ip string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveFailures[ip]
}

// Snapshots returns a point-in-time copy of every interface's counters.
func (e *Engine) Snapshots() []Snapshot {
	snaps := make([]Snapshot, 0, len(e.interfaces))
	for _, iface := range e.interfaces {
		snaps = append(snaps, iface.Snapshot())
	}
	return snaps
}

// MaybeReportStats logs a per-interface statistics report when at least
// StatsInterval has passed since the previous one, and returns the
// snapshots it reported. It is called on session end, so no report fires
// while the proxy is idle; that is accepted. A nil return means the
// interval has not elapsed.
func (e *Engine) MaybeReportStats() []Snapshot {
	e.mu.Lock()
	if e.now().Sub(e.lastStatsReport) < StatsInterval {
		e.mu.Unlock()
		return nil
	}
	e.lastStatsReport = e.now()
	e.mu.Unlock()

	snaps := e.Snapshots()
	logger.Info("=== Interface Statistics Report ===")
	for _, s := range snaps {
		marker := statusMarker(s.Status)
		logger.Info("\nInterface: %s (%s) %s\n"+
			"  Status: %s\n"+
			"  Active connections: %d\n"+
			"  Total requests: %d\n"+
			"  Successful requests: %d\n"+
			"  Failed requests: %d\n"+
			"  Success rate: %.1f%%\n"+
			"  Average response time: %s\n"+
			"  Data transferred: %s",
			s.Name, s.IP, marker, s.Status, s.ActiveConnections,
			s.TotalRequests, s.SuccessfulRequests, s.FailedRequests,
			s.SuccessRate, s.AvgResponseTime, humanize.Bytes(uint64(s.BytesSent)))
	}
	logger.Info(strings.Repeat("=", 30))
	return snaps
}

func statusMarker(s Status) string {
	switch s {
	case StatusActive:
		return "✓"
	case StatusDegraded:
		return "⚠"
	case StatusFailed:
		return "✗"
	default:
		return "?"
	}
}
