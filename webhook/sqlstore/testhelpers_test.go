//go:build integration

package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

/* Test helpers for PostgreSQL integration tests
 * Following the pattern from: https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

const (
	defaultDatabase = "webhooks"
	defaultUser     = "testuser"
	defaultPassword = "testpass"
)

// PostgresContainer wraps the container and its connection string
type PostgresContainer struct {
	Container testcontainers.Container
	ConnStr   string
}

// SetupPostgresContainer starts a PostgreSQL container
func SetupPostgresContainer(t testing.TB, ctx context.Context) (*PostgresContainer, func()) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(defaultDatabase),
		postgres.WithUsername(defaultUser),
		postgres.WithPassword(defaultPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresContainer{Container: pgContainer, ConnStr: connStr}, cleanup
}

// CreateTestRepository opens a migrated repository against the container
func CreateTestRepository(t testing.TB, ctx context.Context, connStr string) *Repository {
	t.Helper()

	repo, err := NewPostgres(ctx, connStr, 10, 2, 5)
	require.NoError(t, err)

	return repo
}

// CountRows returns the number of rows in table
func CountRows(t *testing.T, ctx context.Context, db *sql.DB, table string) int {
	t.Helper()

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	require.NoError(t, err)
	return count
}
