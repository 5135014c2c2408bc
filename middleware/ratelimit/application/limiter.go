package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// UnknownIdentity agrupa todos os clientes sem IP encaminhado num único bucket.
const UnknownIdentity = "unknown"

// Mode identifica a estratégia de janela escolhida no startup.
type Mode string

const (
	// ModeRemote: janela alinhada ao calendário (floor(now/window)) em store remoto.
	ModeRemote Mode = "remote"
	// ModeLocal: janela relativa ao primeiro hit, na tabela do processo.
	ModeLocal Mode = "local"
)

// Strategy é uma das duas formas de janela fixa. As duas ficam separadas de
// propósito: unificar mudaria o comportamento na borda da janela.
type Strategy interface {
	Mode() Mode
	Check(ctx context.Context, class, identity string, limit int64, window time.Duration) (domain.Decision, error)
}

// Limiter decide allow/deny para (classe de rota, cliente) com a estratégia
// fixada na construção. Não existe fallback remoto -> local em runtime.
type Limiter struct {
	strategy Strategy
}

type LimiterOption func(*limiterConfig)

type limiterConfig struct {
	now    func() time.Time
	logger *zap.Logger
}

func WithClock(now func() time.Time) LimiterOption {
	return func(c *limiterConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *zap.Logger) LimiterOption {
	return func(c *limiterConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewLimiter escolhe o modo remoto quando store != nil; senão usa a tabela local.
func NewLimiter(store domain.CounterStore, table domain.WindowTable, opts ...LimiterOption) *Limiter {
	cfg := limiterConfig{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if store != nil {
		return &Limiter{strategy: &RemoteStrategy{Store: store, Now: cfg.now, Logger: cfg.logger}}
	}
	return &Limiter{strategy: &LocalStrategy{Table: table}}
}

func (l *Limiter) Mode() Mode {
	if l == nil || l.strategy == nil {
		return ""
	}
	return l.strategy.Mode()
}

// Check aplica o limite (inclusivo: count == limit ainda passa).
//
// Sem estratégia configurada retorna domain.ErrUnavailable.
func (l *Limiter) Check(ctx context.Context, class, identity string, limit int64, window time.Duration) (domain.Decision, error) {
	if l == nil || l.strategy == nil {
		return domain.Decision{}, domain.ErrUnavailable
	}
	if err := ValidateClass(class); err != nil {
		return domain.Decision{}, err
	}
	if limit <= 0 {
		return domain.Decision{}, fmt.Errorf("ratelimit: limit must be > 0, got %d", limit)
	}
	if window < time.Millisecond {
		return domain.Decision{}, fmt.Errorf("ratelimit: window must be >= 1ms, got %s", window)
	}
	return l.strategy.Check(ctx, class, normalizeIdentity(identity), limit, window)
}

// ValidateClass garante que o nome da classe não colide no formato da chave.
func ValidateClass(class string) error {
	if class == "" || strings.ContainsAny(class, ": \t\r\n") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRouteClass, class)
	}
	return nil
}

// RemoteKey monta rl:{classe}:{cliente}:{bucket}. A classe não tem ':' e o bucket
// é sempre o último segmento, então a chave não é ambígua nem com IPv6.
func RemoteKey(class, identity string, bucket int64) domain.Key {
	return domain.Key("rl:" + class + ":" + identity + ":" + strconv.FormatInt(bucket, 10))
}

// LocalKey monta rl:{classe}:{cliente}; a janela vive dentro da entrada da tabela.
func LocalKey(class, identity string) domain.Key {
	return domain.Key("rl:" + class + ":" + identity)
}

// Bucket quantiza now na janela: floor(now/window).
func Bucket(now time.Time, window time.Duration) int64 {
	w := window.Milliseconds()
	ms := now.UnixMilli()
	b := ms / w
	if ms < 0 && ms%w != 0 {
		b--
	}
	return b
}

// RemoteStrategy: o INCR é a própria checagem; o TTL só é definido quando o
// contador nasce (transição para 1).
type RemoteStrategy struct {
	Store  domain.CounterStore
	Now    func() time.Time
	Logger *zap.Logger
}

func (s *RemoteStrategy) Mode() Mode { return ModeRemote }

func (s *RemoteStrategy) Check(ctx context.Context, class, identity string, limit int64, window time.Duration) (domain.Decision, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	bucket := Bucket(now, window)
	key := RemoteKey(class, identity, bucket)

	count, err := s.Store.Incr(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return domain.Decision{}, err
	}

	if count == 1 {
		if err := s.Store.Expire(ctx, key, window); err != nil && s.Logger != nil {
			// o contador já foi incrementado; a decisão vale mesmo sem ttl
			s.Logger.Warn("ratelimit expire failed",
				zap.String("key", string(key)),
				zap.Error(err))
		}
	}

	resetAt := time.UnixMilli((bucket + 1) * window.Milliseconds())
	dec := domain.Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = resetAt.Sub(now)
	}
	return dec, nil
}

// LocalStrategy delega para a tabela de janelas do processo.
type LocalStrategy struct {
	Table domain.WindowTable
}

func (s *LocalStrategy) Mode() Mode { return ModeLocal }

func (s *LocalStrategy) Check(_ context.Context, class, identity string, limit int64, window time.Duration) (domain.Decision, error) {
	if s.Table == nil {
		return domain.Decision{}, domain.ErrUnavailable
	}
	return s.Table.Hit(LocalKey(class, identity), limit, window), nil
}

func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return UnknownIdentity
	}
	return identity
}
