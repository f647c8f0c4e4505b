package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/linkmux/linkmux/linkmux-srv/logger"
	"github.com/linkmux/linkmux/linkmux-srv/netiface"
)

// PostgresCollector implements Collector using PostgreSQL as the backend
type PostgresCollector struct {
	db *sql.DB
}

// NewPostgresCollector creates a new PostgreSQL-based statistics collector
func NewPostgresCollector(dsn string) (*PostgresCollector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	collector := &PostgresCollector{db: db}
	if err := collector.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized postgres stats collector")

	return collector, nil
}

// initSchema creates the necessary tables if they don't exist
func (p *PostgresCollector) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			session_uuid TEXT,
			client_addr TEXT NOT NULL,
			target_host TEXT NOT NULL,
			target_port INTEGER NOT NULL,
			protocol TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			bytes_client_to_remote BIGINT NOT NULL DEFAULT 0,
			bytes_remote_to_client BIGINT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			close_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS session_errors (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT,
			error_type TEXT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interface_snapshots (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			ip TEXT NOT NULL,
			status TEXT NOT NULL,
			active_connections BIGINT NOT NULL,
			total_requests BIGINT NOT NULL,
			successful_requests BIGINT NOT NULL,
			failed_requests BIGINT NOT NULL,
			success_rate DOUBLE PRECISION NOT NULL,
			avg_response_time_ms BIGINT NOT NULL,
			bytes_sent BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_session_errors_session_id ON session_errors(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interface_snapshots_ip ON interface_snapshots(ip, created_at)`,
	}

	for _, stmt := range schema {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// StartSession records the start of a proxied session.
func (p *PostgresCollector) StartSession(ctx context.Context, sessionUUID, clientAddr, targetHost string, targetPort int, protocol string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO sessions (session_uuid, client_addr, target_host, target_port, protocol, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sessionUUID, clientAddr, targetHost, targetPort, protocol, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record session start: %w", err)
	}
	return id, nil
}

// EndSession records the end of a proxied session.
func (p *PostgresCollector) EndSession(ctx context.Context, sessionID int64, bytesClientToRemote, bytesRemoteToClient int64, duration time.Duration, closeReason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions
		 SET ended_at = $1, bytes_client_to_remote = $2, bytes_remote_to_client = $3, duration_ms = $4, close_reason = $5
		 WHERE id = $6`,
		time.Now(), bytesClientToRemote, bytesRemoteToClient, duration.Milliseconds(), closeReason, sessionID)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// RecordError records an error that occurred during a session.
func (p *PostgresCollector) RecordError(ctx context.Context, sessionID int64, errorType, errorMessage string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO session_errors (session_id, error_type, error_message, created_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, errorType, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// RecordInterfaceSnapshot persists one per-interface statistics snapshot.
func (p *PostgresCollector) RecordInterfaceSnapshot(ctx context.Context, snap netiface.Snapshot) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO interface_snapshots
		 (name, ip, status, active_connections, total_requests, successful_requests, failed_requests,
		  success_rate, avg_response_time_ms, bytes_sent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		snap.Name, snap.IP, string(snap.Status), snap.ActiveConnections, snap.TotalRequests,
		snap.SuccessfulRequests, snap.FailedRequests, snap.SuccessRate,
		snap.AvgResponseTime.Milliseconds(), snap.BytesSent, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record interface snapshot: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (p *PostgresCollector) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresCollector) Close() error {
	return p.db.Close()
}
