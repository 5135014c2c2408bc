package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// SlotService aplica o limite de requests em voo com timeout de aquisição,
// sem saber nada sobre HTTP.
type SlotService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Sem Pool, sempre admite.
// - AcquireTimeout <= 0 espera até ctx cancelar; > 0 espera no máximo o timeout.
func (s SlotService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
