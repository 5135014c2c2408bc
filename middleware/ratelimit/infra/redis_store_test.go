package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisForTest(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCounterStore_IncrAndExpire(t *testing.T) {
	client := redisForTest(t)
	s := NewRedisCounterStore(client, WithCounterPrefix("admission-test:"))

	ctx := context.Background()
	key := domain.Key(fmt.Sprintf("rl:auth:it:%d", time.Now().UnixNano()))

	n, err := s.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Expire(ctx, key, 1500*time.Millisecond))
	ttl, err := client.TTL(ctx, "admission-test:"+string(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second)
	assert.LessOrEqual(t, ttl, 2*time.Second)

	n, err = s.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisCounterStore_UnreachableIsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	s := NewRedisCounterStore(client, WithRedisCallTimeout(100*time.Millisecond))

	_, err := s.Incr(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, s.Expire(context.Background(), "k", time.Second), domain.ErrUnavailable)
}

func TestRedisCounterStore_NilClientIsUnavailable(t *testing.T) {
	var s *RedisCounterStore
	_, err := s.Incr(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
