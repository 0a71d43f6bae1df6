// Package ratelimit implements fixed-window admission control keyed by
// (provider, tenant).
//
// Admission is a reservation: CheckLimit atomically claims a slot when one is
// free, so parallel callers can never be admitted past the limit. Callers
// consult the limiter only once the cache, the breaker and call coalescing
// have decided an outbound call is needed, and confirm the slot with
// RecordRequest after making it.
package ratelimit

import (
	"context"
	"time"
)

// Config is the limit that applies to one (provider, tenant) pair.
type Config struct {
	Limit  int
	Window time.Duration
}

// Unlimited reports whether the config disables limiting.
func (c Config) Unlimited() bool {
	return c.Limit <= 0 || c.Window <= 0
}

// Status is the outcome of an admission check.
type Status struct {
	Allowed bool      `json:"allowed"`
	ResetAt time.Time `json:"reset_at"`
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
}

// Limiter admits outbound provider calls.
type Limiter interface {
	CheckLimit(ctx context.Context, provider, tenant string, cfg Config) (Status, error)
	RecordRequest(ctx context.Context, provider, tenant string, cfg Config) error
}

func windowKey(provider, tenant string) string {
	return provider + "|" + tenant
}
