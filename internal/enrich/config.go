package enrich

import (
	"time"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/ratelimit"
)

// Config tunes one Orchestrator.
type Config struct {
	MaxConcurrency int
	// CallTimeout bounds every live provider call unless the provider
	// declares its own timeout.
	CallTimeout time.Duration
	// Deadline bounds a whole Enrich call. Zero means no deadline beyond the
	// caller's context.
	Deadline time.Duration
	// MinEffectiveWeight is the floor a candidate must strictly exceed.
	MinEffectiveWeight float64
	// OverrideThreshold is the effective weight a provider must strictly
	// exceed to replace a high-confidence caller value.
	OverrideThreshold float64
	// SuppliedConfidence is the caller confidence at which a supplied value
	// counts as high-confidence.
	SuppliedConfidence float64
	DefaultCacheTTL    time.Duration
	DefaultRateLimit   ratelimit.Config
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     5,
		CallTimeout:        5 * time.Second,
		Deadline:           20 * time.Second,
		OverrideThreshold:  0.9,
		SuppliedConfidence: 0.8,
		DefaultCacheTTL:    24 * time.Hour,
		DefaultRateLimit:   ratelimit.Config{Limit: 60, Window: time.Minute},
	}
}

// ConfigFrom maps application configuration onto an orchestrator Config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	o := cfg.Orchestrator
	if o.MaxConcurrency > 0 {
		c.MaxConcurrency = o.MaxConcurrency
	}
	if o.CallTimeoutSecs > 0 {
		c.CallTimeout = time.Duration(o.CallTimeoutSecs * float64(time.Second))
	}
	if o.DeadlineSecs >= 0 {
		c.Deadline = time.Duration(o.DeadlineSecs * float64(time.Second))
	}
	c.MinEffectiveWeight = o.MinEffectiveWeight
	if o.OverrideThreshold > 0 {
		c.OverrideThreshold = o.OverrideThreshold
	}
	if o.SuppliedConfidence > 0 {
		c.SuppliedConfidence = o.SuppliedConfidence
	}
	if ttl := cfg.Cache.DefaultTTL(); ttl > 0 {
		c.DefaultCacheTTL = ttl
	}
	if cfg.RateLimit.DefaultLimit > 0 && cfg.RateLimit.DefaultWindowSecs > 0 {
		c.DefaultRateLimit = ratelimit.Config{
			Limit:  cfg.RateLimit.DefaultLimit,
			Window: time.Duration(cfg.RateLimit.DefaultWindowSecs) * time.Second,
		}
	}
	return c
}
