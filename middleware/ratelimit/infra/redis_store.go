package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implementa domain.CounterStore falando RESP direto com o Redis,
// para ambientes que têm Redis acessível em vez do gateway REST.
//
// Mesmo contrato do RESTCounterStore: cada erro vira domain.ErrUnavailable.
type RedisCounterStore struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisCallTimeout(d time.Duration) RedisCounterOption {
	return func(s *RedisCounterStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewRedisCounterStore(rdb *redis.Client, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:     rdb,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) Incr(ctx context.Context, key domain.Key) (int64, error) {
	if s == nil || s.rdb == nil {
		return 0, fmt.Errorf("%w: redis not configured", domain.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.rdb.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr: %v", domain.ErrUnavailable, err)
	}
	return n, nil
}

func (s *RedisCounterStore) Expire(ctx context.Context, key domain.Key, ttl time.Duration) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("%w: redis not configured", domain.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// EXPIRE trabalha em segundos; arredonda para cima para não encurtar a janela.
	secs := (ttl + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	if err := s.rdb.Expire(ctx, s.key(key), secs*time.Second).Err(); err != nil {
		return fmt.Errorf("%w: expire: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisCounterStore) key(k domain.Key) string {
	if s.prefix == "" {
		return string(k)
	}
	return s.prefix + ":" + string(k)
}
