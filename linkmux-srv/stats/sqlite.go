package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// SQLiteCollector implements Collector using SQLite as the backend
type SQLiteCollector struct {
	db *sql.DB
}

// NewSQLiteCollector creates a new SQLite-based statistics collector
func NewSQLiteCollector(dbPath string) (*SQLiteCollector, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	collector := &SQLiteCollector{db: db}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized sqlite stats collector at %s", dbPath)

	return collector, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *SQLiteCollector) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_uuid TEXT,
			client_addr TEXT NOT NULL,
			target_host TEXT NOT NULL,
			target_port INTEGER NOT NULL,
			protocol TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			bytes_client_to_remote INTEGER NOT NULL DEFAULT 0,
			bytes_remote_to_client INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			close_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS session_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER,
			error_type TEXT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interface_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			ip TEXT NOT NULL,
			status TEXT NOT NULL,
			active_connections INTEGER NOT NULL,
			total_requests INTEGER NOT NULL,
			successful_requests INTEGER NOT NULL,
			failed_requests INTEGER NOT NULL,
			success_rate REAL NOT NULL,
			avg_response_time_ms INTEGER NOT NULL,
			bytes_sent INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_session_errors_session_id ON session_errors(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interface_snapshots_ip ON interface_snapshots(ip, created_at)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// StartSession records the start of a proxied session.
func (s *SQLiteCollector) StartSession(ctx context.Context, sessionUUID, clientAddr, targetHost string, targetPort int, protocol string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_uuid, client_addr, target_host, target_port, protocol, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionUUID, clientAddr, targetHost, targetPort, protocol, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to record session start: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session ID: %w", err)
	}

	return id, nil
}

// EndSession records the end of a proxied session.
func (s *SQLiteCollector) EndSession(ctx context.Context, sessionID int64, bytesClientToRemote, bytesRemoteToClient int64, duration time.Duration, closeReason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET ended_at = ?, bytes_client_to_remote = ?, bytes_remote_to_client = ?, duration_ms = ?, close_reason = ?
		 WHERE id = ?`,
		time.Now(), bytesClientToRemote, bytesRemoteToClient, duration.Milliseconds(), closeReason, sessionID)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// RecordError records an error that occurred during a session.
func (s *SQLiteCollector) RecordError(ctx context.Context, sessionID int64, errorType, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_errors (session_id, error_type, error_message, created_at)
		 VALUES (?, ?, ?, ?)`,
		sessionID, errorType, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// RecordInterfaceSnapshot persists one per-interface statistics snapshot.
func (s *SQLiteCollector) RecordInterfaceSnapshot(ctx context.Context, snap netiface.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interface_snapshots
		 (name, ip, status, active_connections, total_requests, successful_requests, failed_requests,
		  success_rate, avg_response_time_ms, bytes_sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Name, snap.IP, string(snap.Status), snap.ActiveConnections, snap.TotalRequests,
		snap.SuccessfulRequests, snap.FailedRequests, snap.SuccessRate,
		snap.AvgResponseTime.Milliseconds(), snap.BytesSent, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record interface snapshot: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteCollector) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteCollector) Close() error {
	return s.db.Close()
}
