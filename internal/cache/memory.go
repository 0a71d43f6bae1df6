package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rotisserie/eris"
)

// MemoryStore is an in-process, bounded TTL store. Every entry costs 1, so
// maxEntries bounds the number of live entries.
type MemoryStore struct {
	c *ristretto.Cache[string, []byte]
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        int64(maxEntries) * 10,
		MaxCost:            int64(maxEntries),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "cache: create memory store")
	}
	return &MemoryStore{c: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	return v, ok, nil
}

func (m *MemoryStore) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, 0, false, nil
	}
	ttl, _ := m.c.GetTTL(key)
	return v, ttl, true, nil
}

// Set stores value and waits for the write to become visible, so a Get that
// follows a Set on the same goroutine observes it.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if !m.c.SetWithTTL(key, value, 1, ttl) {
		return eris.New("cache: memory store dropped write")
	}
	m.c.Wait()
	return nil
}

// Close stops the store's background goroutines.
func (m *MemoryStore) Close() {
	m.c.Close()
}
