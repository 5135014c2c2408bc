package infra

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentListener aceita conexões e nunca responde.
func silentListener(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func silentRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:                  silentListener(t),
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStatsStore_RecordIsBoundedOnSilentServer(t *testing.T) {
	s := NewRedisStatsStore(silentRedis(t), WithStatsCallTimeout(100*time.Millisecond))

	start := time.Now()
	err := s.Record(context.Background(), domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeAllowed})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAsyncStatsStore_RecordNeverBlocks(t *testing.T) {
	inner := NewRedisStatsStore(silentRedis(t), WithStatsCallTimeout(100*time.Millisecond))
	s := NewAsyncStatsStore(inner, 4, WithAsyncTimeout(100*time.Millisecond))
	stop := s.Start(context.Background())
	defer stop()

	start := time.Now()
	for i := 0; i < 20; i++ {
		_ = s.Record(context.Background(), domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeAllowed})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Positive(t, s.Dropped())
}

func TestAsyncStatsStore_DropsWhenFull(t *testing.T) {
	s := NewAsyncStatsStore(NewMemoryStatsStore(), 1)
	ctx := context.Background()
	ev := domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeDenied}

	require.NoError(t, s.Record(ctx, ev))
	assert.ErrorIs(t, s.Record(ctx, ev), ErrStatsDropped)
	assert.Equal(t, int64(1), s.Dropped())
	assert.Equal(t, 1, s.Pending())

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Dropped)
}

func TestAsyncStatsStore_WorkerForwardsEvents(t *testing.T) {
	inner := NewMemoryStatsStore()
	s := NewAsyncStatsStore(inner, 8)
	stop := s.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeAllowed}))
	}

	require.Eventually(t, func() bool {
		return inner.Total()[domain.OutcomeAllowed] == 3
	}, time.Second, 5*time.Millisecond)

	stop()
	stop()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.ByClass["auth"][domain.OutcomeAllowed])
}
