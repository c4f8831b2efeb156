package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ratelimitredis "github.com/marcelsud/webhook-dispatch/ratelimit/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := ratelimitredis.NewStore(client, ratelimitredis.DefaultPrefix)
	t.Cleanup(func() { _ = store.Close(ctx) })

	now := time.Now()
	for i := 0; i < 3; i++ {
		_, err := store.Record(ctx, "login:ip:10.0.0.1", now.Add(time.Duration(i)*time.Millisecond), time.Minute)
		require.NoError(t, err)
	}

	var out bytes.Buffer
	require.NoError(t, resetWindow(ctx, store, &out, "login:ip:10.0.0.1"))

	assert.Equal(t, "reset login:ip:10.0.0.1 (3 requests in window)\n", out.String())
	assert.False(t, mr.Exists(ratelimitredis.DefaultPrefix+":login:ip:10.0.0.1"))

	out.Reset()
	require.NoError(t, resetWindow(ctx, store, &out, "login:ip:10.0.0.1"))
	assert.Equal(t, "reset login:ip:10.0.0.1 (0 requests in window)\n", out.String())
}
