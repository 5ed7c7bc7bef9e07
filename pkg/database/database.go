// Package database is the Postgres event store connection: pool setup,
// schema checks and migrations for the events and policy_events tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const applicationName = "elastic-orchestrator"

type DB struct {
	*sql.DB
}

// Config describes the store connection. AutoMigrate applies the embedded
// migrations when the store opens.
type Config struct {
	Host             string
	Port             int
	Name             string
	User             string
	Password         string
	MaxConnections   int
	SSLMode          string
	AutoMigrate      bool
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	MigrationTimeout time.Duration
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode, applicationName,
	)
}

// withDefaults fills the pool settings. The event logger is the only
// writer, so the pool stays small unless configured otherwise.
func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.MigrationTimeout == 0 {
		c.MigrationTimeout = 30 * time.Second
	}
	return c
}

// Connect opens the pool and pings the server. It does not look at the
// schema; migrate uses it before the tables exist.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()

	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxConnections)
	conn.SetMaxIdleConns(max(1, cfg.MaxConnections/2))
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: conn}, nil
}

// Open connects to the event store. With AutoMigrate set the migrations
// run first; either way the store is rejected unless its tables exist.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()

	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, cfg.MigrationTimeout); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.CheckSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies every embedded migration within timeout.
func (db *DB) Migrate(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return NewMigrator(db).Run(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck fails when the server is unreachable or the event tables
// have gone missing.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return db.CheckSchema(ctx)
}
