package infra

import (
	"testing"
	"time"
)

func TestBurstStore_SameKeyReturnsSameLimiter(t *testing.T) {
	s := NewBurstStore(10, 1)

	l1 := s.limiter("k")
	l2 := s.limiter("k")
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestBurstStore_LowBurstRejectsSecondImmediateAllow(t *testing.T) {
	s := NewBurstStore(0.02, 1)

	if !s.Allow("k") {
		t.Fatalf("expected first Allow to be true")
	}
	if s.Allow("k") {
		t.Fatalf("expected second immediate Allow to be false (burst=1)")
	}
	if !s.Allow("other") {
		t.Fatalf("expected a different key to have its own bucket")
	}
}

func TestBurstStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewBurstStore(10, 1, WithIdleTTL(2*time.Millisecond), WithCleanupEvery(0))

	before := s.limiter("k")
	time.Sleep(4 * time.Millisecond)

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, have %d", s.Len())
	}

	after := s.limiter("k")
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}

func TestBurstStore_ReportsSettings(t *testing.T) {
	s := NewBurstStore(2.5, 4)
	if s.RPS() != 2.5 || s.Burst() != 4 {
		t.Fatalf("got rps=%v burst=%d", s.RPS(), s.Burst())
	}
}
