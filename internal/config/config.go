// Package config carrega a configuração do gateway uma única vez no startup:
// defaults, arquivo YAML opcional e variáveis de ambiente (prefixo ADMISSION_).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends do store remoto de contadores.
const (
	BackendAuto  = ""
	BackendREST  = "rest"
	BackendRedis = "redis"
	BackendNone  = "none"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Upstream    UpstreamConfig    `mapstructure:"upstream" yaml:"upstream"`
	Remote      RemoteConfig      `mapstructure:"remote" yaml:"remote"`
	Local       LocalConfig       `mapstructure:"local" yaml:"local"`
	Routes      []RouteConfig     `mapstructure:"routes" yaml:"routes"`
	Gate        GateConfig        `mapstructure:"gate" yaml:"gate"`
	Burst       BurstConfig       `mapstructure:"burst" yaml:"burst"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Stats       StatsConfig       `mapstructure:"stats" yaml:"stats"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// AdminEnabled expõe /admin/ratelimit/stats. Sem autenticação: só em listener interno.
	AdminEnabled bool `mapstructure:"admin_enabled" yaml:"admin_enabled"`
}

// UpstreamConfig: com URL vazia o gateway serve o router embutido.
type UpstreamConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

type RemoteConfig struct {
	// Backend vazio escolhe "rest" quando url e token estão presentes.
	Backend string        `mapstructure:"backend" yaml:"backend"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

type LocalConfig struct {
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

type RouteConfig struct {
	Name     string        `mapstructure:"name" yaml:"name"`
	Limit    int64         `mapstructure:"limit" yaml:"limit"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	Paths    []string      `mapstructure:"paths" yaml:"paths"`
	Prefixes []string      `mapstructure:"prefixes" yaml:"prefixes"`
}

type GateConfig struct {
	APIPrefix           string   `mapstructure:"api_prefix" yaml:"api_prefix"`
	AllowedMethods      []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	RetryAfterSeconds   int      `mapstructure:"retry_after_seconds" yaml:"retry_after_seconds"`
	LocalFallback       bool     `mapstructure:"local_fallback" yaml:"local_fallback"`
	AddRateLimitHeaders bool     `mapstructure:"add_ratelimit_headers" yaml:"add_ratelimit_headers"`
}

type BurstConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	RPS     float64       `mapstructure:"rps" yaml:"rps"`
	Burst   int           `mapstructure:"burst" yaml:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
}

type ConcurrencyConfig struct {
	Max            int           `mapstructure:"max" yaml:"max"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
}

type StatsConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Backend   string        `mapstructure:"backend" yaml:"backend"` // memory | redis
	Prefix    string        `mapstructure:"prefix" yaml:"prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Bucket    string        `mapstructure:"bucket" yaml:"bucket"`
	TrackKeys bool          `mapstructure:"track_keys" yaml:"track_keys"`
	Redis     RedisConfig   `mapstructure:"redis" yaml:"redis"`

	// Timeout limita cada gravação/leitura no backend de estatísticas.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Buffer é a fila de eventos antes do worker do Redis; cheia, descarta.
	Buffer int `mapstructure:"buffer" yaml:"buffer"`

	// MaxKeys e KeyIdleTTL limitam a contagem por chave em memória.
	MaxKeys    int           `mapstructure:"max_keys" yaml:"max_keys"`
	KeyIdleTTL time.Duration `mapstructure:"key_idle_ttl" yaml:"key_idle_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// RemoteBackend resolve o backend efetivo. "none" significa sem store remoto.
func (c *Config) RemoteBackend() string {
	switch b := strings.ToLower(strings.TrimSpace(c.Remote.Backend)); b {
	case BackendAuto:
		if c.Remote.URL != "" && c.Remote.Token != "" {
			return BackendREST
		}
		return BackendNone
	default:
		return b
	}
}

// Validate verifica a configuração já decodificada e junta todos os problemas.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Upstream.URL != "" {
		if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstream.url %q is not an absolute URL", c.Upstream.URL))
		}
	}

	switch c.RemoteBackend() {
	case BackendNone:
	case BackendREST:
		if c.Remote.URL == "" || c.Remote.Token == "" {
			errs = append(errs, errors.New("remote.url and remote.token are required for the rest backend"))
		}
	case BackendRedis:
		if c.Remote.Redis.Addr == "" {
			errs = append(errs, errors.New("remote.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.backend %q is not one of rest, redis, none", c.Remote.Backend))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote.timeout must be > 0"))
	}

	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		switch {
		case r.Name == "" || strings.ContainsAny(r.Name, ": \t\r\n"):
			errs = append(errs, fmt.Errorf("routes[%d].name %q must be non-empty without ':' or spaces", i, r.Name))
		case seen[r.Name]:
			errs = append(errs, fmt.Errorf("routes[%d].name %q is duplicated", i, r.Name))
		}
		seen[r.Name] = true
		if r.Limit <= 0 {
			errs = append(errs, fmt.Errorf("routes[%d].limit must be > 0", i))
		}
		if r.Window < time.Millisecond {
			errs = append(errs, fmt.Errorf("routes[%d].window must be >= 1ms", i))
		}
		if len(r.Paths) == 0 && len(r.Prefixes) == 0 {
			errs = append(errs, fmt.Errorf("routes[%d] needs at least one path or prefix", i))
		}
	}

	if !strings.HasPrefix(c.Gate.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("gate.api_prefix %q must start with /", c.Gate.APIPrefix))
	}
	if len(c.Gate.AllowedMethods) == 0 {
		errs = append(errs, errors.New("gate.allowed_methods must not be empty"))
	}
	if c.Gate.RetryAfterSeconds <= 0 {
		errs = append(errs, errors.New("gate.retry_after_seconds must be > 0"))
	}

	if c.Burst.Enabled && (c.Burst.RPS <= 0 || c.Burst.Burst <= 0) {
		errs = append(errs, errors.New("burst.rps and burst.burst must be > 0 when burst is enabled"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}

	if c.Stats.Enabled {
		if c.Stats.Timeout <= 0 {
			errs = append(errs, errors.New("stats.timeout must be > 0"))
		}
		if c.Stats.Buffer <= 0 || c.Stats.MaxKeys <= 0 {
			errs = append(errs, errors.New("stats.buffer and stats.max_keys must be > 0"))
		}
		switch c.Stats.Backend {
		case "memory":
		case "redis":
			if c.Stats.Redis.Addr == "" {
				errs = append(errs, errors.New("stats.redis.addr is required when stats.backend=redis"))
			}
		default:
			errs = append(errs, fmt.Errorf("stats.backend %q is not one of memory, redis", c.Stats.Backend))
		}
	}

	return errors.Join(errs...)
}

// Redacted devolve uma cópia sem segredos, própria para log e dump.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Remote.Token = mask(c.Remote.Token)
	c.Remote.Redis.Password = mask(c.Remote.Redis.Password)
	c.Stats.Redis.Password = mask(c.Stats.Redis.Password)
	c.Routes = append([]RouteConfig(nil), c.Routes...)
	return c
}

// YAML renderiza a configuração efetiva com os segredos mascarados.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
