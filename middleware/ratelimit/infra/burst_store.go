package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// BurstStore mantém um token bucket (x/time/rate) por identidade de cliente,
// usado pelo guarda de rajada do prefixo de API. Entradas ociosas são limpas
// periodicamente.
type BurstStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*burstEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type burstEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type BurstOption func(*BurstStore)

func WithIdleTTL(d time.Duration) BurstOption {
	return func(s *BurstStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BurstOption {
	return func(s *BurstStore) { s.cleanupEvery = d }
}

func NewBurstStore(rps float64, burst int, opts ...BurstOption) *BurstStore {
	s := &BurstStore{
		entries:      make(map[domain.Key]*burstEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BurstStore) RPS() float64 { return float64(s.rps) }
func (s *BurstStore) Burst() int   { return s.burst }

// Allow consome um token do bucket de key.
func (s *BurstStore) Allow(key domain.Key) bool {
	return s.limiter(key).Allow()
}

func (s *BurstStore) limiter(key domain.Key) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &burstEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *BurstStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *BurstStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor limpa chaves inativas periodicamente até ctx ser cancelado.
func (s *BurstStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
