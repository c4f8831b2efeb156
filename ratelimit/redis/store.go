package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of ratelimit.Store
 * One sorted set per identifier: member "<ms>-<uuid>", score = request time in ms
 * Every check runs in a MULTI/EXEC block so concurrent instances see a consistent count
 */

const DefaultPrefix = "ratelimit"

var _ ratelimit.Store = (*Store)(nil)

type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore wraps an existing client
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// NewClient builds a client without contacting the server
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Connect opens a client and checks it answers
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := NewClient(addr, password, db)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return client, nil
}

func (s *Store) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Record evicts, counts, adds and expires in one transaction
func (s *Store) Record(ctx context.Context, identifier string, now time.Time, window time.Duration) (ratelimit.Window, error) {
	key := s.key(identifier)
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		pipe.PExpire(ctx, key, window)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		return nil
	})
	if err != nil {
		return ratelimit.Window{}, fmt.Errorf("recording request for %s: %w", identifier, err)
	}

	w := ratelimit.Window{Count: card.Val()}
	if zs := oldest.Val(); len(zs) > 0 {
		w.Oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return w, nil
}

// Reset drops the identifier's window
func (s *Store) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("deleting window: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}
