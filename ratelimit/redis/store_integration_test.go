//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatch/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	t.Run("window key expires with the window", func(t *testing.T) {
		store := CreateTestStore(t, ctx, redisContainer.Addr)

		_, err := store.Record(ctx, "ttl:ip:1", time.Now(), 30*time.Second)
		require.NoError(t, err)

		ttl := GetKeyTTLMillis(t, redisContainer.Addr, "ratelimit:ttl:ip:1")
		assert.Greater(t, ttl, int64(0))
		assert.LessOrEqual(t, ttl, int64(30_000))
	})

	t.Run("concurrent checks across clients never exceed the limit", func(t *testing.T) {
		const (
			limit   = 25
			clients = 4
		)
		limiters := make([]*ratelimit.Limiter, clients)
		for i := range limiters {
			limiters[i] = ratelimit.NewLimiter(CreateTestStore(t, ctx, redisContainer.Addr), zerolog.Nop())
		}

		var (
			allowed atomic.Int64
			wg      sync.WaitGroup
		)
		for i := 0; i < 2*limit; i++ {
			wg.Add(1)
			go func(l *ratelimit.Limiter) {
				defer wg.Done()
				if l.Check(ctx, "burst:user:1", limit, time.Minute).Allowed {
					allowed.Add(1)
				}
			}(limiters[i%clients])
		}
		wg.Wait()

		assert.Equal(t, int64(limit), allowed.Load())
	})

	t.Run("reset reopens the window", func(t *testing.T) {
		store := CreateTestStore(t, ctx, redisContainer.Addr)
		l := ratelimit.NewLimiter(store, zerolog.Nop())

		require.True(t, l.Check(ctx, "reset:ip:1", 1, time.Minute).Allowed)
		require.False(t, l.Check(ctx, "reset:ip:1", 1, time.Minute).Allowed)

		require.NoError(t, l.Reset(ctx, "reset:ip:1"))
		assert.True(t, l.Check(ctx, "reset:ip:1", 1, time.Minute).Allowed)
		assert.NoError(t, l.HealthCheck(ctx))
	})
}
