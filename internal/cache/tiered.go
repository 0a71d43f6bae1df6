package cache

import (
	"context"
	"time"
)

// Tiered reads the in-process L1 first and falls back to the shared L2.
// L2 hits are copied into L1 for their remaining lifetime, so an entry is
// never served from L1 past its L2 expiry.
type Tiered struct {
	l1 Store
	l2 Store
}

// NewTiered combines two stores.
func NewTiered(l1, l2 Store) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	ts, ok := t.l2.(TTLStore)
	if !ok {
		// Without a remaining TTL the entry cannot be promoted safely.
		return t.l2.Get(ctx, key)
	}
	v, ttl, ok, err := ts.GetWithTTL(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if ttl > 0 {
		_ = t.l1.Set(ctx, key, v, ttl)
	}
	return v, true, nil
}

// Set writes both tiers. An L2 failure is returned after L1 is written.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.l1.Set(ctx, key, value, ttl)
	return t.l2.Set(ctx, key, value, ttl)
}
