package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit" mapstructure:"ratelimit"`
	Resilience   ResilienceConfig   `yaml:"resilience" mapstructure:"resilience"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Embedding    EmbeddingConfig    `yaml:"embedding" mapstructure:"embedding"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	GS1          GS1Config          `yaml:"gs1" mapstructure:"gs1"`
	Sources      SourcesConfig      `yaml:"sources" mapstructure:"sources"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// StoreConfig configures the relational store for validated history and
// the consensus audit trail.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the shared Redis backend. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// CacheConfig configures the provider response cache.
type CacheConfig struct {
	Backend         string `yaml:"backend" mapstructure:"backend"` // memory, redis, tiered
	DefaultTTLHours int    `yaml:"default_ttl_hours" mapstructure:"default_ttl_hours"`
	MaxEntries      int    `yaml:"max_entries" mapstructure:"max_entries"`
	KeyPrefix       string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// DefaultTTL returns the default provider TTL.
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLHours) * time.Hour
}

// RateLimitConfig configures per (provider, tenant) admission control.
type RateLimitConfig struct {
	Backend           string `yaml:"backend" mapstructure:"backend"` // memory, redis
	DefaultLimit      int    `yaml:"default_limit" mapstructure:"default_limit"`
	DefaultWindowSecs int    `yaml:"default_window_secs" mapstructure:"default_window_secs"`
}

// ResilienceConfig configures per-provider circuit breakers and retries.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// OrchestratorConfig configures fan-out and fusion.
type OrchestratorConfig struct {
	MaxConcurrency     int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	CallTimeoutSecs    float64 `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	DeadlineSecs       float64 `yaml:"deadline_secs" mapstructure:"deadline_secs"`
	MinEffectiveWeight float64 `yaml:"min_effective_weight" mapstructure:"min_effective_weight"`
	OverrideThreshold  float64 `yaml:"override_threshold" mapstructure:"override_threshold"`
	SuppliedConfidence float64 `yaml:"supplied_confidence" mapstructure:"supplied_confidence"`
	PersistAudit       bool    `yaml:"persist_audit" mapstructure:"persist_audit"`
}

// RetrievalConfig configures the hybrid retrieval engine.
type RetrievalConfig struct {
	IndexPath    string  `yaml:"index_path" mapstructure:"index_path"` // empty = in-memory
	Alpha        float64 `yaml:"alpha" mapstructure:"alpha"`
	K1           float64 `yaml:"k1" mapstructure:"k1"`
	B            float64 `yaml:"b" mapstructure:"b"`
	ChunkSize    int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	ChunkMin     int     `yaml:"chunk_min" mapstructure:"chunk_min"`
	DefaultLimit int     `yaml:"default_limit" mapstructure:"default_limit"`
	IndexWorkers int     `yaml:"index_workers" mapstructure:"index_workers"`
}

// EmbeddingConfig configures the hosted embedding service.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, hash
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
}

// AnthropicConfig configures the LLM used for fallback classification and
// query expansion.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GS1Config configures the GS1-style product registry.
type GS1Config struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Key     string  `yaml:"key" mapstructure:"key"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
	Burst   int     `yaml:"burst" mapstructure:"burst"`
}

// SourcesConfig points at the provider registry declaration.
type SourcesConfig struct {
	ConfigPath string   `yaml:"config_path" mapstructure:"config_path"`
	Tenants    []string `yaml:"tenants" mapstructure:"tenants"` // warm-up at startup
}

// MonitoringConfig configures background health checks and alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	IncompleteRateThreshold float64 `yaml:"incomplete_rate_threshold" mapstructure:"incomplete_rate_threshold"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ProviderFailureCount    int     `yaml:"provider_failure_count" mapstructure:"provider_failure_count"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	AlertCooldownSecs       int     `yaml:"alert_cooldown_secs" mapstructure:"alert_cooldown_secs"`
}

// envOnlyKeys are settings with no default, typically secrets and optional
// endpoints supplied through the environment.
var envOnlyKeys = []string{
	"redis.addr",
	"redis.password",
	"embedding.key",
	"anthropic.key",
	"gs1.key",
	"retrieval.index_path",
	"sources.tenants",
	"monitoring.webhook_url",
}

// Load reads configuration from an optional .env file, config.yaml, and the
// environment (prefix ENRICH).
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enricher.db")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.default_ttl_hours", 24)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.key_prefix", "enrich:cache:")
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.default_limit", 60)
	v.SetDefault("ratelimit.default_window_secs", 60)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.max_attempts", 2)
	v.SetDefault("resilience.initial_backoff_ms", 200)
	v.SetDefault("orchestrator.max_concurrency", 5)
	v.SetDefault("orchestrator.call_timeout_secs", 5)
	v.SetDefault("orchestrator.deadline_secs", 20)
	v.SetDefault("orchestrator.min_effective_weight", 0.0)
	v.SetDefault("orchestrator.override_threshold", 0.9)
	v.SetDefault("orchestrator.supplied_confidence", 0.8)
	v.SetDefault("orchestrator.persist_audit", true)
	v.SetDefault("retrieval.alpha", 0.7)
	v.SetDefault("retrieval.k1", 1.2)
	v.SetDefault("retrieval.b", 0.75)
	v.SetDefault("retrieval.chunk_size", 1024)
	v.SetDefault("retrieval.chunk_overlap", 128)
	v.SetDefault("retrieval.chunk_min", 100)
	v.SetDefault("retrieval.default_limit", 10)
	v.SetDefault("retrieval.index_workers", 4)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.dimension", 256)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("gs1.base_url", "https://api.gs1.example/v1")
	v.SetDefault("gs1.rps", 5.0)
	v.SetDefault("gs1.burst", 5)
	v.SetDefault("sources.config_path", "sources.yaml")
	v.SetDefault("monitoring.incomplete_rate_threshold", 0.25)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.provider_failure_count", 20)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.alert_cooldown_secs", 3600)

	// AutomaticEnv only feeds Unmarshal for keys viper already knows; these
	// have no default, so they are bound explicitly.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by mode are present and that
// numeric settings are within range. Mode is one of serve, enrich, search,
// index, validate, sources.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		add("store.driver must be postgres or sqlite")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis", "tiered":
		if c.Redis.Addr == "" {
			add("redis.addr is required for cache.backend=%s", c.Cache.Backend)
		}
	default:
		add("cache.backend must be memory, redis or tiered")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			add("redis.addr is required for ratelimit.backend=redis")
		}
	default:
		add("ratelimit.backend must be memory or redis")
	}

	o := c.Orchestrator
	if o.MaxConcurrency < 1 || o.MaxConcurrency > 32 {
		add("orchestrator.max_concurrency must be between 1 and 32")
	}
	if o.CallTimeoutSecs <= 0 {
		add("orchestrator.call_timeout_secs must be > 0")
	}
	if !inUnit(o.OverrideThreshold) {
		add("orchestrator.override_threshold must be between 0 and 1")
	}
	if !inUnit(o.SuppliedConfidence) {
		add("orchestrator.supplied_confidence must be between 0 and 1")
	}
	if o.MinEffectiveWeight < 0 || o.MinEffectiveWeight >= 1 {
		add("orchestrator.min_effective_weight must be in [0, 1)")
	}

	r := c.Retrieval
	if !inUnit(r.Alpha) {
		add("retrieval.alpha must be between 0 and 1")
	}
	if r.ChunkSize <= 0 || r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize || r.ChunkMin > r.ChunkSize {
		add("retrieval chunk sizes must satisfy 0 <= overlap < size and min <= size")
	}

	needsEmbedding := false
	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		needsEmbedding = true
	case "search", "index", "validate":
		needsEmbedding = true
	case "enrich", "sources":
	default:
		add("unknown mode %q", mode)
	}

	if needsEmbedding && c.Embedding.Provider == "openai" && c.Embedding.Key == "" {
		add("embedding.key is required for embedding.provider=openai")
	}
	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "hash" {
		add("embedding.provider must be openai or hash")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" && (mode == "serve" || mode == "validate") {
		add("store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
