package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

/*
SQL implementation of webhook.Repository

The same queries serve PostgreSQL and SQLite. They are written with `?`
placeholders and rebound to `$1, $2...` for PostgreSQL. Timestamps are
always written in UTC so SQLite's text timestamps compare correctly.
*/

// Dialect selects placeholder style and column types
type Dialect int

const (
	Postgres Dialect = iota + 1
	SQLite
)

// String returns the database/sql driver name of the dialect
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite3"
	default:
		return "unknown"
	}
}

// NewDialect maps a configured driver name to a Dialect
func NewDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

type Repository struct {
	DB      *sql.DB
	dialect Dialect
}

// New wraps an already opened database
func New(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{DB: db, dialect: dialect}
}

// Open connects with the dialect's driver and runs the schema migration
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	switch dialect {
	case Postgres:
		return NewPostgres(ctx, dsn, 25, 5, 5)
	case SQLite:
		return NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %d", dialect)
	}
}

// NewPostgres opens a PostgreSQL pool
// maxOpenConns: maximum simultaneous connections (0 = unlimited)
// maxIdleConns: idle connections kept in the pool
// maxLifeMinutes: maximum lifetime of a pooled connection
func NewPostgres(ctx context.Context, connStr string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open(Postgres.String(), connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	r := New(db, Postgres)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewSQLite opens a SQLite database; ":memory:" works for tests
func NewSQLite(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open(SQLite.String(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// single writer; also keeps an in-memory database alive on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	r := New(db, SQLite)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Migrate creates the tables and indexes if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if r.dialect == Postgres {
		ts = "TIMESTAMPTZ"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			events TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			headers TEXT NOT NULL DEFAULT '{}',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			timeout_seconds INTEGER NOT NULL,
			max_retries INTEGER NOT NULL,
			retry_delay_seconds INTEGER NOT NULL,
			total_calls BIGINT NOT NULL DEFAULT 0,
			success_calls BIGINT NOT NULL DEFAULT 0,
			failed_calls BIGINT NOT NULL DEFAULT 0,
			last_triggered_at ` + ts + ` NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_logs (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			event TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			http_status INTEGER NULL,
			response_body TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NULL,
			created_at ` + ts + ` NOT NULL,
			completed_at ` + ts + ` NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_logs_webhook_created ON webhook_logs (webhook_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_logs_created ON webhook_logs (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// rebind turns `?` placeholders into `$n` for PostgreSQL
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
