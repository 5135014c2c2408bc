package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Counters agrega desfechos por outcome.
type Counters map[domain.Outcome]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// OverflowKey recebe os eventos por chave quando o limite de chaves já foi atingido.
const OverflowKey = "~overflow"

// MemoryStatsStore guarda estatísticas de admissão em memória do processo.
//
// Contagem por chave só com trackKeys ligado; o número de chaves é limitado
// (excedente vai para OverflowKey) e chaves ociosas saem no Cleanup.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byClass map[string]Counters
	byKey   map[string]*keyEntry

	trackKeys    bool
	maxKeys      int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type keyEntry struct {
	counters Counters
	lastSeen time.Time
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMaxKeys limita quantas chaves distintas são contadas (<= 0 mantém o padrão).
func WithMaxKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithKeyIdleTTL define depois de quanto tempo sem eventos uma chave é descartada.
func WithKeyIdleTTL(d time.Duration) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.idleTTL = d }
}

func WithKeyCleanupEvery(d time.Duration) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.cleanupEvery = d }
}

func withStatsClock(now func() time.Time) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.now = now }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:        make(Counters),
		byClass:      make(map[string]Counters),
		byKey:        make(map[string]*keyEntry),
		maxKeys:      10000,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	class := ev.Class
	if class == "" {
		class = "-"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++

	c, ok := s.byClass[class]
	if !ok {
		c = make(Counters)
		s.byClass[class] = c
	}
	c[ev.Outcome]++

	if s.trackKeys && ev.Key != "" {
		key := string(ev.Key)
		ent, ok := s.byKey[key]
		if !ok {
			// o slot de overflow não conta no limite
			if len(s.byKey) >= s.maxKeys {
				key = OverflowKey
				ent = s.byKey[key]
			}
			if ent == nil {
				ent = &keyEntry{counters: make(Counters)}
				s.byKey[key] = ent
			}
		}
		ent.counters[ev.Outcome]++
		ent.lastSeen = s.now()
	}
	return nil
}

// Cleanup remove chaves sem eventos há mais de idleTTL.
func (s *MemoryStatsStore) Cleanup() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.byKey {
		if ent.lastSeen.Before(cutoff) {
			delete(s.byKey, k)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Cleanup periodicamente até ctx ser cancelado.
func (s *MemoryStatsStore) StartJanitor(ctx context.Context) {
	if !s.trackKeys || s.cleanupEvery <= 0 {
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

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByClass() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byClass))
	for k, v := range s.byClass {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v.counters.clone()
	}
	return out
}

func (s *MemoryStatsStore) Snapshot(context.Context) (domain.StatsSnapshot, error) {
	snap := domain.StatsSnapshot{
		Total:   s.Total(),
		ByClass: make(map[string]map[domain.Outcome]int64),
	}
	for class, c := range s.ByClass() {
		snap.ByClass[class] = c
	}
	if s.trackKeys {
		snap.ByKey = make(map[string]map[domain.Outcome]int64)
		for key, c := range s.ByKey() {
			snap.ByKey[key] = c
		}
	}
	return snap, nil
}
