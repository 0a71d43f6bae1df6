package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.DefaultTTL())
	assert.Equal(t, 60, cfg.RateLimit.DefaultLimit)
	assert.Equal(t, 5, cfg.Orchestrator.MaxConcurrency)
	assert.InDelta(t, 5.0, cfg.Orchestrator.CallTimeoutSecs, 0.001)
	assert.InDelta(t, 0.9, cfg.Orchestrator.OverrideThreshold, 0.001)
	assert.InDelta(t, 0.8, cfg.Orchestrator.SuppliedConfidence, 0.001)
	assert.InDelta(t, 0.7, cfg.Retrieval.Alpha, 0.001)
	assert.InDelta(t, 1.2, cfg.Retrieval.K1, 0.001)
	assert.InDelta(t, 0.75, cfg.Retrieval.B, 0.001)
	assert.Equal(t, 1024, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 128, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 100, cfg.Retrieval.ChunkMin)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "sources.yaml", cfg.Sources.ConfigPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
log:
  level: debug
  format: console
cache:
  backend: tiered
redis:
  addr: localhost:6379
orchestrator:
  max_concurrency: 8
sources:
  tenants: [acme, globex]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "tiered", cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrency)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Sources.Tenants)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("ENRICH_LOG_LEVEL", "warn")
	t.Setenv("ENRICH_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadEnvOnlyKeys(t *testing.T) {
	chdirTemp(t)

	env := map[string]string{
		"ENRICH_REDIS_ADDR":             "redis:6379",
		"ENRICH_REDIS_PASSWORD":         "hunter2",
		"ENRICH_EMBEDDING_KEY":          "sk-embed",
		"ENRICH_GS1_KEY":                "gs1-key",
		"ENRICH_RETRIEVAL_INDEX_PATH":   "/var/lib/enricher/index",
		"ENRICH_MONITORING_WEBHOOK_URL": "https://hooks.example/alerts",
		"ENRICH_SOURCES_TENANTS":        "acme,globex",
	}
	for k, val := range env {
		t.Setenv(k, val)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "sk-embed", cfg.Embedding.Key)
	assert.Equal(t, "gs1-key", cfg.GS1.Key)
	assert.Equal(t, "/var/lib/enricher/index", cfg.Retrieval.IndexPath)
	assert.Equal(t, "https://hooks.example/alerts", cfg.Monitoring.WebhookURL)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Sources.Tenants)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ENRICH_SERVER_PORT=3000\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ENRICH_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func validDefaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "test.db"},
		Cache:  CacheConfig{Backend: "memory"},
		RateLimit: RateLimitConfig{
			Backend: "memory",
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency:     5,
			CallTimeoutSecs:    5,
			OverrideThreshold:  0.9,
			SuppliedConfidence: 0.8,
		},
		Retrieval: RetrievalConfig{Alpha: 0.7, ChunkSize: 1024, ChunkOverlap: 128, ChunkMin: 100},
		Embedding: EmbeddingConfig{Provider: "hash"},
	}
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "enrich", "search", "index", "validate", "sources"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidate_EmbeddingKeyRequired(t *testing.T) {
	cfg := validDefaults()
	cfg.Embedding.Provider = "openai"

	err := cfg.Validate("index")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.key is required")

	assert.NoError(t, cfg.Validate("enrich"))

	cfg.Embedding.Key = "sk-test"
	assert.NoError(t, cfg.Validate("index"))
}

func TestValidate_RedisRequiredForSharedBackends(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Backend = "tiered"
	cfg.RateLimit.Backend = "redis"

	err := cfg.Validate("enrich")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr is required for cache.backend=tiered")
	assert.Contains(t, err.Error(), "redis.addr is required for ratelimit.backend=redis")

	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidate_PostgresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("validate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Orchestrator.MaxConcurrency = 0
	cfg.Orchestrator.OverrideThreshold = 1.5
	cfg.Orchestrator.MinEffectiveWeight = 1
	cfg.Retrieval.Alpha = -0.1
	cfg.Retrieval.ChunkOverlap = 2048

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 32")
	assert.Contains(t, err.Error(), "override_threshold")
	assert.Contains(t, err.Error(), "min_effective_weight")
	assert.Contains(t, err.Error(), "retrieval.alpha")
	assert.Contains(t, err.Error(), "chunk sizes")
}
