package ratelimit

import (
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool opcional; sem ele é criado um semáforo de capacidade Max.
	Pool   domain.SlotPool
	Logger *zap.Logger
}

// ConcurrencyMiddleware limita requests admitidas em voo. Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	svc := application.SlotService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				log.Warn("no concurrency slot available",
					zap.String("path", r.URL.Path),
					zap.Int("in_flight", opts.Pool.InFlight()))
				writeJSONError(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
