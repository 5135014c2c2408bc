package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix é o prefixo das variáveis de ambiente (ADMISSION_SERVER_ADDR etc).
const EnvPrefix = "ADMISSION"

// legacyEnv são os nomes herdados do deploy original do store REST.
var legacyEnv = map[string]string{
	"remote.url":   "UPSTASH_REDIS_REST_URL",
	"remote.token": "UPSTASH_REDIS_REST_TOKEN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_enabled", false)

	v.SetDefault("upstream.url", "")

	v.SetDefault("remote.backend", BackendAuto)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 2*time.Second)
	v.SetDefault("remote.redis.addr", "")
	v.SetDefault("remote.redis.password", "")
	v.SetDefault("remote.redis.db", 0)

	v.SetDefault("local.prune_interval", time.Minute)

	v.SetDefault("routes", []map[string]any{{
		"name":     "auth",
		"limit":    20,
		"window":   "1m",
		"paths":    []string{"/api/auth/register"},
		"prefixes": []string{"/api/auth/signin", "/api/auth/callback"},
	}})

	v.SetDefault("gate.api_prefix", "/api/")
	v.SetDefault("gate.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("gate.retry_after_seconds", 60)
	v.SetDefault("gate.local_fallback", false)
	v.SetDefault("gate.add_ratelimit_headers", false)

	v.SetDefault("burst.enabled", false)
	v.SetDefault("burst.rps", 10.0)
	v.SetDefault("burst.burst", 20)
	v.SetDefault("burst.idle_ttl", 15*time.Minute)

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.acquire_timeout", time.Duration(0))

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.prefix", "admission:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)
	v.SetDefault("stats.timeout", 500*time.Millisecond)
	v.SetDefault("stats.buffer", 1024)
	v.SetDefault("stats.max_keys", 10000)
	v.SetDefault("stats.key_idle_ttl", 15*time.Minute)
	v.SetDefault("stats.redis.addr", "")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load lê defaults -> arquivo (se path != "") -> ambiente e valida o resultado.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for i := range cfg.Gate.AllowedMethods {
		cfg.Gate.AllowedMethods[i] = strings.ToUpper(strings.TrimSpace(cfg.Gate.AllowedMethods[i]))
	}
	cfg.Remote.URL = strings.TrimRight(strings.TrimSpace(cfg.Remote.URL), "/")
	cfg.Remote.Token = strings.TrimSpace(cfg.Remote.Token)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
