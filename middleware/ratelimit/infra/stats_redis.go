package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava estatísticas de admissão em hashes do Redis:
//
//	{prefix}:total                 outcome -> n (cumulativo, não expira)
//	{prefix}:minute:YYYYMMDDhhmm   outcome -> n (com ttl)
//	{prefix}:class                 "{classe}:{outcome}" -> n
//	{prefix}:key:{chave}           outcome -> n (opcional, com ttl)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	ttl    time.Duration
	// "minute" (padrão) ou "none"
	bucket string

	trackKeys bool
	timeout   time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

// WithStatsCallTimeout limita cada pipeline/leitura no Redis.
func WithStatsCallTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:     rdb,
		prefix:  "admission:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if class := strings.TrimSpace(ev.Class); class != "" {
		pipe.HIncrBy(ctx, s.prefix+":class", class+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot lê os hashes total e class. Campos não numéricos são ignorados.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	snap := domain.StatsSnapshot{
		Total:   make(map[domain.Outcome]int64),
		ByClass: make(map[string]map[domain.Outcome]int64),
	}
	if s == nil || s.rdb == nil {
		return snap, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	total, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return snap, fmt.Errorf("stats total: %w", err)
	}
	for field, v := range total {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.Total[domain.Outcome(field)] = n
		}
	}

	classes, err := s.rdb.HGetAll(ctx, s.prefix+":class").Result()
	if err != nil {
		return snap, fmt.Errorf("stats class: %w", err)
	}
	for field, v := range classes {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		class, outcome := field[:i], domain.Outcome(field[i+1:])
		if snap.ByClass[class] == nil {
			snap.ByClass[class] = make(map[domain.Outcome]int64)
		}
		snap.ByClass[class][outcome] = n
	}
	return snap, nil
}
