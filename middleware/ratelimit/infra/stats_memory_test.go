package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByOutcomeAndClass(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "rl:auth:a", Class: "auth", Outcome: domain.OutcomeAllowed})
	_ = s.Record(ctx, domain.StatsEvent{Key: "rl:auth:a", Class: "auth", Outcome: domain.OutcomeDenied})
	_ = s.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeMethodBlocked})

	total := s.Total()
	assert.Equal(t, int64(1), total[domain.OutcomeAllowed])
	assert.Equal(t, int64(1), total[domain.OutcomeDenied])
	assert.Equal(t, int64(1), total[domain.OutcomeMethodBlocked])

	byClass := s.ByClass()
	assert.Equal(t, int64(1), byClass["auth"][domain.OutcomeDenied])
	assert.Equal(t, int64(1), byClass["-"][domain.OutcomeMethodBlocked])

	byKey := s.ByKey()
	assert.Len(t, byKey, 1)
	assert.Equal(t, int64(1), byKey["rl:auth:a"][domain.OutcomeAllowed])
}

func TestMemoryStatsStore_SnapshotsAreCopies(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeAllowed})

	snap := s.Total()
	snap[domain.OutcomeAllowed] = 99

	assert.Equal(t, int64(1), s.Total()[domain.OutcomeAllowed])
	assert.Empty(t, s.ByKey(), "keys are not tracked by default")
}

func TestMemoryStatsStore_Snapshot(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()
	_ = s.Record(ctx, domain.StatsEvent{Class: "auth", Outcome: domain.OutcomeUnavailable})

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, int64(1), snap.Total[domain.OutcomeUnavailable])
	assert.Equal(t, int64(1), snap.ByClass["auth"][domain.OutcomeUnavailable])
	assert.Empty(t, s.ByKey(), "keys are not tracked by default")
}

func TestMemoryStatsStore_KeysAreBounded(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true), WithMaxKeys(3))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_ = s.Record(ctx, domain.StatsEvent{Key: domain.Key(fmt.Sprintf("rl:auth:%d", i)), Class: "auth", Outcome: domain.OutcomeAllowed})
	}

	byKey := s.ByKey()
	assert.LessOrEqual(t, len(byKey), 4)
	assert.Equal(t, int64(47), byKey[OverflowKey][domain.OutcomeAllowed])
	assert.Equal(t, int64(1), byKey["rl:auth:0"][domain.OutcomeAllowed])

	// chave já conhecida continua contando no próprio slot
	_ = s.Record(ctx, domain.StatsEvent{Key: "rl:auth:1", Class: "auth", Outcome: domain.OutcomeDenied})
	assert.Equal(t, int64(1), s.ByKey()["rl:auth:1"][domain.OutcomeDenied])
	assert.Equal(t, int64(50), s.Total()[domain.OutcomeAllowed])
}

func TestMemoryStatsStore_CleanupDropsIdleKeys(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStatsStore(
		WithTrackKeys(true),
		WithKeyIdleTTL(time.Minute),
		withStatsClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "rl:auth:old", Class: "auth", Outcome: domain.OutcomeAllowed})
	now = now.Add(50 * time.Second)
	_ = s.Record(ctx, domain.StatsEvent{Key: "rl:auth:new", Class: "auth", Outcome: domain.OutcomeAllowed})
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, s.Cleanup())
	byKey := s.ByKey()
	assert.NotContains(t, byKey, "rl:auth:old")
	assert.Contains(t, byKey, "rl:auth:new")
	assert.Equal(t, int64(2), s.Total()[domain.OutcomeAllowed], "totals survive cleanup")
}

func TestMemoryStatsStore_SnapshotExposesKeysWhenTracked(t *testing.T) {
	ctx := context.Background()
	ev := domain.StatsEvent{Key: "rl:auth:a", Class: "auth", Outcome: domain.OutcomeDenied}

	tracked := NewMemoryStatsStore(WithTrackKeys(true))
	_ = tracked.Record(ctx, ev)
	snap, err := tracked.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.ByKey["rl:auth:a"][domain.OutcomeDenied])

	plain := NewMemoryStatsStore()
	_ = plain.Record(ctx, ev)
	snap, err = plain.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.ByKey)
}
