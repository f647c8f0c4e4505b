package stats

import (
	"context"
	"time"

	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// Collector defines the interface for recording proxy session statistics.
type Collector interface {
	// Session tracking
	StartSession(ctx context.Context, sessionUUID, clientAddr, targetHost string, targetPort int, protocol string) (int64, error)
	EndSession(ctx context.Context, sessionID int64, bytesClientToRemote, bytesRemoteToClient int64, duration time.Duration, closeReason string) error

	// Error tracking
	RecordError(ctx context.Context, sessionID int64, errorType, errorMessage string) error

	// Periodic per-interface reporting
	RecordInterfaceSnapshot(ctx context.Context, snap netiface.Snapshot) error

	// Health check
	HealthCheck(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// SessionInfo holds information about one proxied session.
type SessionInfo struct {
	ID                  int64
	UUID                string
	ClientAddr          string
	TargetHost          string
	TargetPort          int
	Protocol            string
	StartedAt           time.Time
	EndedAt             *time.Time
	BytesClientToRemote int64
	BytesRemoteToClient int64
	Duration            time.Duration
	CloseReason         string
}

// ErrorInfo holds information about a recorded error.
type ErrorInfo struct {
	SessionID    int64
	ErrorType    string
	ErrorMessage string
	Timestamp    time.Time
}
