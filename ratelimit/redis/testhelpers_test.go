//go:build integration

package redis_test

import (
	"context"
	"strings"
	"testing"

	ratelimitredis "github.com/marcelsud/webhook-dispatch/ratelimit/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Test Helpers for Redis Integration Tests
 * Following the pattern from: https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

// RedisContainer holds the Redis testcontainer and connection details
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	Addr      string
}

// SetupRedisContainer creates and starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx,
		"redis:7-alpine",
		testcontainersredis.WithLogLevel(testcontainersredis.LogLevelVerbose),
	)
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	rc := &RedisContainer{
		Container: redisContainer,
		Addr:      strings.TrimPrefix(addr, "redis://"),
	}

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return rc, cleanup
}

// CreateTestStore connects a store to the test container
func CreateTestStore(t *testing.T, ctx context.Context, addr string) *ratelimitredis.Store {
	t.Helper()

	client, err := ratelimitredis.Connect(ctx, addr, "", 0)
	require.NoError(t, err, "failed to connect to Redis")

	store := ratelimitredis.NewStore(client, "")
	t.Cleanup(func() { store.Close(ctx) })
	return store
}

// GetKeyTTLMillis returns the TTL of a Redis key in milliseconds
func GetKeyTTLMillis(t *testing.T, addr string, key string) int64 {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	ttl, err := client.PTTL(context.Background(), key).Result()
	require.NoError(t, err)

	return ttl.Milliseconds()
}
