package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// WindowTable é a tabela local de janelas fixas, variante "reset no primeiro hit":
// a janela de cada chave começa na primeira request e dura `window`.
//
// Um único mutex protege o mapa; Hit e Prune disputam o mesmo lock.
type WindowTable struct {
	mu      sync.Mutex
	entries map[domain.Key]*windowEntry

	pruneEvery time.Duration
	now        func() time.Time
}

type windowEntry struct {
	count   int64
	resetAt time.Time
}

type WindowTableOption func(*WindowTable)

// WithPruneEvery define a cadência da limpeza periódica. <= 0 desliga o pruner.
func WithPruneEvery(d time.Duration) WindowTableOption {
	return func(t *WindowTable) { t.pruneEvery = d }
}

// WithClock troca o relógio (útil em testes).
func WithClock(now func() time.Time) WindowTableOption {
	return func(t *WindowTable) {
		if now != nil {
			t.now = now
		}
	}
}

func NewWindowTable(opts ...WindowTableOption) *WindowTable {
	t := &WindowTable{
		entries:    make(map[domain.Key]*windowEntry),
		pruneEvery: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Hit registra uma request para key e decide.
//
// Entrada ausente ou vencida (resetAt <= agora) é recriada com count=1 e sempre
// permitida, independente de o pruner já ter passado.
func (t *WindowTable) Hit(key domain.Key, limit int64, window time.Duration) domain.Decision {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[key]
	if !ok || !now.Before(ent.resetAt) {
		ent = &windowEntry{count: 1, resetAt: now.Add(window)}
		t.entries[key] = ent
		return domain.Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(0, limit-1),
			ResetAt:   ent.resetAt,
		}
	}

	ent.count++
	dec := domain.Decision{
		Allowed:   ent.count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-ent.count),
		ResetAt:   ent.resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = ent.resetAt.Sub(now)
	}
	return dec
}

// Prune remove toda entrada com resetAt <= agora. Nunca remove entrada viva.
// Retorna quantas foram removidas.
func (t *WindowTable) Prune() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, ent := range t.entries {
		if !now.Before(ent.resetAt) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

func (t *WindowTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartPruner inicia a goroutine de limpeza periódica, independente do tráfego.
// O retorno cancela a goroutine e espera ela terminar; cancelar ctx também para.
func (t *WindowTable) StartPruner(ctx context.Context) (stop func()) {
	if t.pruneEvery <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := time.NewTicker(t.pruneEvery)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Prune()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
