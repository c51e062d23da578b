package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig, PostgreSQL bağlantı ayarlarını içerir.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// PostgresClient, PostgreSQL bağlantı havuzunu yönetir.
type PostgresClient struct {
	db     *sql.DB
	config *PostgresConfig
}

// NewPostgresClient, yeni bir PostgreSQL client oluşturur.
func NewPostgresClient(config *PostgresConfig) (*PostgresClient, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.Username,
		config.Password,
		config.Database,
		config.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	// Connection pool ayarları
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Bağlantı testi
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &PostgresClient{
		db:     db,
		config: config,
	}, nil
}

// GetDB, *sql.DB instance'ını döndürür.
func (p *PostgresClient) GetDB() *sql.DB {
	return p.db
}

// Ping, bağlantının sağlıklı olup olmadığını kontrol eder.
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close, bağlantıyı kapatır.
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Query, sorgu çalıştırır ve satırları döndürür.
func (p *PostgresClient) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

// QueryRow, tek satır döndüren sorgu çalıştırır.
func (p *PostgresClient) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Exec, DML komutları çalıştırır.
func (p *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

// BeginTx, yeni bir transaction başlatır.
func (p *PostgresClient) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return p.db.BeginTx(ctx, nil)
}

// InitializeSchema, gerekli PostgreSQL tablolarını oluşturur.
// events_raw and events are the two time-partitioned tables the time-series
// writer owns; both are converted to hypertables when the TimescaleDB
// extension is present (create_hypertable is a no-op failure we swallow on
// plain Postgres so the same schema works against either).
func (p *PostgresClient) InitializeSchema(ctx context.Context) error {
	schema := `
	-- Raw event storage, one row per (ts, host_id, event_type).
	CREATE TABLE IF NOT EXISTS events_raw (
		ts TIMESTAMPTZ NOT NULL,
		host_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (ts, host_id, event_type)
	);

	-- Enriched event storage, natural key (id, created_at) so repeated
	-- upserts of the same id land in the same hypertable chunk lineage.
	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		env TEXT,
		rdns TEXT,
		metadata JSONB,
		payload BYTEA,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		PRIMARY KEY (id, created_at)
	);

	CREATE INDEX IF NOT EXISTS idx_events_raw_ts ON events_raw (ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_raw_host_id ON events_raw (host_id);
	CREATE INDEX IF NOT EXISTS idx_events_raw_event_type ON events_raw (event_type);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
	CREATE INDEX IF NOT EXISTS idx_events_env ON events (env);
	CREATE INDEX IF NOT EXISTS idx_events_metadata ON events USING GIN (metadata);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Hypertable conversion requires the TimescaleDB extension; on a plain
	// Postgres instance these calls fail and are intentionally ignored so
	// the schema still works for local/dev setups without Timescale.
	_, _ = p.db.ExecContext(ctx, `SELECT create_hypertable('events_raw', 'ts', if_not_exists => TRUE)`)
	_, _ = p.db.ExecContext(ctx, `SELECT create_hypertable('events', 'created_at', if_not_exists => TRUE)`)

	return nil
}

// Health, database sağlık durumunu döndürür.
func (p *PostgresClient) Health(ctx context.Context) (map[string]string, error) {
	var version string
	err := p.db.QueryRowContext(ctx, "SELECT version()").Scan(&version)
	if err != nil {
		return nil, err
	}

	stats := p.db.Stats()

	return map[string]string{
		"status":           "healthy",
		"version":          version,
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}, nil
}
