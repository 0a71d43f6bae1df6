package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often CheckLimit scans for elapsed windows.
const sweepEvery = time.Minute

type window struct {
	start    time.Time
	length   time.Duration
	recorded int
	pending  int
}

func (w *window) expired(now time.Time) bool {
	return now.Sub(w.start) >= w.length
}

// Memory is an in-process fixed-window limiter. A window opens on the first
// request for a pair and resets once it has elapsed. Elapsed windows are
// dropped so idle pairs do not accumulate.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	nowFunc   func() time.Time
}

// NewMemory creates an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		nowFunc: time.Now,
	}
}

// sweep deletes elapsed windows. Caller holds m.mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepEvery {
		return
	}
	m.lastSweep = now
	for k, w := range m.windows {
		if w.expired(now) {
			delete(m.windows, k)
		}
	}
}

func (m *Memory) CheckLimit(_ context.Context, provider, tenant string, cfg Config) (Status, error) {
	if cfg.Unlimited() {
		return Status{Allowed: true}, nil
	}
	now := m.nowFunc()
	key := windowKey(provider, tenant)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(now)

	w, ok := m.windows[key]
	if !ok || w.expired(now) {
		w = &window{start: now, length: cfg.Window}
		m.windows[key] = w
	}
	used := w.recorded + w.pending
	st := Status{
		ResetAt: w.start.Add(w.length),
		Count:   used,
		Limit:   cfg.Limit,
	}
	if used >= cfg.Limit {
		return st, nil
	}
	w.pending++
	st.Allowed = true
	st.Count = used + 1
	return st, nil
}

// RecordRequest confirms a slot reserved by CheckLimit. It never opens a
// window: if the reserving window has since elapsed, the call already
// counted there and nothing is carried into the next one.
func (m *Memory) RecordRequest(_ context.Context, provider, tenant string, cfg Config) error {
	if cfg.Unlimited() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowKey(provider, tenant)]
	if !ok || w.pending == 0 {
		return nil
	}
	w.pending--
	w.recorded++
	return nil
}

// Snapshot returns the current status of a pair without reserving a slot.
func (m *Memory) Snapshot(provider, tenant string, cfg Config) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[windowKey(provider, tenant)]
	if !ok || w.expired(m.nowFunc()) {
		return Status{Allowed: true, Limit: cfg.Limit}
	}
	used := w.recorded + w.pending
	return Status{
		Allowed: used < cfg.Limit,
		ResetAt: w.start.Add(w.length),
		Count:   used,
		Limit:   cfg.Limit,
	}
}
