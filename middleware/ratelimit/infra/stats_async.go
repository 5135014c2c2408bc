package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ErrStatsDropped indica que a fila do AsyncStatsStore estava cheia.
var ErrStatsDropped = errors.New("stats: queue full, event dropped")

// AsyncStatsStore tira a gravação de estatísticas do caminho da request:
// Record só enfileira (nunca bloqueia) e um worker grava no store de destino,
// cada chamada limitada por timeout. Com a fila cheia o evento é descartado.
type AsyncStatsStore struct {
	inner   domain.StatsStore
	events  chan domain.StatsEvent
	timeout time.Duration
	dropped atomic.Int64
}

type AsyncStatsOption func(*AsyncStatsStore)

func WithAsyncTimeout(d time.Duration) AsyncStatsOption {
	return func(s *AsyncStatsStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewAsyncStatsStore(inner domain.StatsStore, buffer int, opts ...AsyncStatsOption) *AsyncStatsStore {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncStatsStore{
		inner:   inner,
		events:  make(chan domain.StatsEvent, buffer),
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AsyncStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case s.events <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsDropped
	}
}

func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }

func (s *AsyncStatsStore) Pending() int { return len(s.events) }

// Start sobe o worker. O retorno para o worker e espera ele sair; eventos
// ainda na fila são descartados.
func (s *AsyncStatsStore) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				callCtx, callCancel := context.WithTimeout(ctx, s.timeout)
				_ = s.inner.Record(callCtx, ev)
				callCancel()
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

// Snapshot repassa para o store de destino quando ele sabe ler.
func (s *AsyncStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	var snap domain.StatsSnapshot
	if r, ok := s.inner.(domain.StatsReader); ok {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var err error
		if snap, err = r.Snapshot(ctx); err != nil {
			return snap, err
		}
	}
	snap.Dropped = s.Dropped()
	return snap, nil
}
