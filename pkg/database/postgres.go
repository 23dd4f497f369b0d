package database

import (
	"context"
	"fmt"
	"time"

	"isp-portal/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the statement surface shared by the pool and by pgx.Tx, so a
// repository can run inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgxIface interface untuk abstraction database
type PgxIface interface {
	Querier
	Ping(ctx context.Context) error
	Close()
	Pool() *pgxpool.Pool
}

// DB wrapper struct
type DB struct {
	pool *pgxpool.Pool
}

// Query implements PgxIface
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow implements PgxIface
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec implements PgxIface
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// Begin implements PgxIface
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

// Ping implements PgxIface
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close implements PgxIface
func (db *DB) Close() {
	db.pool.Close()
}

// Pool exposes the underlying pool for database/sql bridges (migrations).
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// ConnString builds a keyword/value DSN from config.
func ConnString(config utils.DatabaseConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=%s",
		config.User, config.Password, config.Name, config.Host, config.Port, sslMode)
}

// InitDB opens the connection pool and pings it.
func InitDB(ctx context.Context, config utils.DatabaseConfig) (PgxIface, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(config))
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	return &DB{pool: pool}, nil
}
