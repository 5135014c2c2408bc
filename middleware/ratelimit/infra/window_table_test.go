package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestWindowTable_AllowsUpToLimitThenDenies(t *testing.T) {
	clock := newFakeClock()
	tbl := NewWindowTable(WithClock(clock.Now))

	for i := int64(1); i <= 3; i++ {
		dec := tbl.Hit("k", 3, time.Minute)
		require.True(t, dec.Allowed, "hit %d should be allowed", i)
		assert.Equal(t, 3-i, dec.Remaining)
	}

	dec := tbl.Hit("k", 3, time.Minute)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)
	assert.Equal(t, time.Minute, dec.RetryAfter)
}

func TestWindowTable_TimelineScenario(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	tbl := NewWindowTable(WithClock(clock.Now))

	for _, ms := range []int{0, 100, 200, 300, 400} {
		clock.Set(start.Add(time.Duration(ms) * time.Millisecond))
		dec := tbl.Hit("login:1.2.3.4", 5, time.Second)
		require.True(t, dec.Allowed, "hit at t=%dms should be allowed", ms)
	}

	clock.Set(start.Add(500 * time.Millisecond))
	dec := tbl.Hit("login:1.2.3.4", 5, time.Second)
	assert.False(t, dec.Allowed)
	assert.Equal(t, int64(0), dec.Remaining)

	clock.Set(start.Add(1100 * time.Millisecond))
	dec = tbl.Hit("login:1.2.3.4", 5, time.Second)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(4), dec.Remaining, "count should restart at 1")
	assert.Equal(t, start.Add(2100*time.Millisecond), dec.ResetAt)
}

func TestWindowTable_ExpiredEntryIsResetWithoutPrune(t *testing.T) {
	clock := newFakeClock()
	tbl := NewWindowTable(WithClock(clock.Now), WithPruneEvery(0))

	for i := 0; i < 10; i++ {
		tbl.Hit("k", 2, time.Second)
	}
	require.False(t, tbl.Hit("k", 2, time.Second).Allowed)

	// exatamente em resetAt a janela já acabou
	clock.Set(clock.Now().Add(time.Second))
	dec := tbl.Hit("k", 2, time.Second)
	assert.True(t, dec.Allowed)
	assert.Equal(t, int64(1), dec.Remaining)
}

func TestWindowTable_KeysAreIndependent(t *testing.T) {
	tbl := NewWindowTable()

	require.True(t, tbl.Hit("a", 1, time.Minute).Allowed)
	require.False(t, tbl.Hit("a", 1, time.Minute).Allowed)
	assert.True(t, tbl.Hit("b", 1, time.Minute).Allowed)
}

func TestWindowTable_PruneRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	tbl := NewWindowTable(WithClock(clock.Now))

	tbl.Hit("short", 5, time.Second)
	tbl.Hit("long", 5, time.Hour)
	require.Equal(t, 2, tbl.Len())

	assert.Equal(t, 0, tbl.Prune(), "nothing expired yet")

	clock.Set(clock.Now().Add(time.Second))
	assert.Equal(t, 1, tbl.Prune())
	assert.Equal(t, 1, tbl.Len())

	// a entrada viva mantém a contagem
	dec := tbl.Hit("long", 5, time.Hour)
	assert.Equal(t, int64(3), dec.Remaining)
}

func TestWindowTable_ConcurrentHitsDoNotLoseUpdates(t *testing.T) {
	tbl := NewWindowTable()

	const workers = 64
	const perWorker = 50
	var allowed atomic.Int64

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for range perWorker {
				if tbl.Hit("shared", 1000, time.Hour).Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), allowed.Load())
	dec := tbl.Hit("shared", 1000, time.Hour)
	assert.False(t, dec.Allowed)
}

func TestWindowTable_PrunerRunsAndStops(t *testing.T) {
	tbl := NewWindowTable(WithPruneEvery(5 * time.Millisecond))
	tbl.Hit(domain.Key("gone"), 1, time.Millisecond)

	stop := tbl.StartPruner(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return tbl.Len() == 0 }, time.Second, 5*time.Millisecond)

	stop()
	stop() // idempotente
}

func TestWindowTable_PrunerDisabled(t *testing.T) {
	tbl := NewWindowTable(WithPruneEvery(0))
	stop := tbl.StartPruner(context.Background())
	stop()
}
