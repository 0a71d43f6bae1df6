package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AdmitsUpToLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg := Config{Limit: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		st, err := m.CheckLimit(ctx, "gs1", "acme", cfg)
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		require.NoError(t, m.RecordRequest(ctx, "gs1", "acme", cfg))
	}

	st, err := m.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 2, st.Count)
	assert.False(t, st.ResetAt.IsZero())
}

func TestMemory_PairsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg := Config{Limit: 1, Window: time.Minute}

	st, _ := m.CheckLimit(ctx, "gs1", "acme", cfg)
	assert.True(t, st.Allowed)
	st, _ = m.CheckLimit(ctx, "gs1", "globex", cfg)
	assert.True(t, st.Allowed, "other tenant has its own window")
	st, _ = m.CheckLimit(ctx, "llm", "acme", cfg)
	assert.True(t, st.Allowed, "other provider has its own window")
	st, _ = m.CheckLimit(ctx, "gs1", "acme", cfg)
	assert.False(t, st.Allowed)
}

func TestMemory_WindowResets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }
	cfg := Config{Limit: 1, Window: time.Minute}

	st, _ := m.CheckLimit(ctx, "gs1", "acme", cfg)
	require.True(t, st.Allowed)
	assert.Equal(t, now.Add(time.Minute), st.ResetAt)
	require.NoError(t, m.RecordRequest(ctx, "gs1", "acme", cfg))

	st, _ = m.CheckLimit(ctx, "gs1", "acme", cfg)
	assert.False(t, st.Allowed)

	now = now.Add(61 * time.Second)
	st, _ = m.CheckLimit(ctx, "gs1", "acme", cfg)
	assert.True(t, st.Allowed, "a new window opens once the old one elapsed")
}

func TestMemory_RecordAfterRolloverStaysInReservingWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }
	cfg := Config{Limit: 1, Window: time.Minute}

	st, _ := m.CheckLimit(ctx, "gs1", "acme", cfg)
	require.True(t, st.Allowed)

	// The outbound call outlives the window it was admitted in.
	now = now.Add(90 * time.Second)
	require.NoError(t, m.RecordRequest(ctx, "gs1", "acme", cfg))
	assert.Zero(t, m.Snapshot("gs1", "acme", cfg).Count, "nothing carried into the next window")

	st, _ = m.CheckLimit(ctx, "gs1", "acme", cfg)
	assert.True(t, st.Allowed)
	assert.Equal(t, 1, st.Count)
}

func TestMemory_RecordConfirmsReservation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg := Config{Limit: 3, Window: time.Minute}

	_, _ = m.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, m.RecordRequest(ctx, "gs1", "acme", cfg))
	require.NoError(t, m.RecordRequest(ctx, "gs1", "acme", cfg), "extra confirmation is ignored")
	assert.Equal(t, 1, m.Snapshot("gs1", "acme", cfg).Count)

	require.NoError(t, m.RecordRequest(ctx, "llm", "acme", cfg))
	assert.Zero(t, m.Snapshot("llm", "acme", cfg).Count, "no reservation, no window")
}

func TestMemory_SweepsElapsedWindows(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }

	for _, tenant := range []string{"acme", "globex", "initech"} {
		_, _ = m.CheckLimit(ctx, "gs1", tenant, Config{Limit: 5, Window: 10 * time.Second})
	}
	_, _ = m.CheckLimit(ctx, "llm", "acme", Config{Limit: 5, Window: time.Hour})
	require.Len(t, m.windows, 4)

	now = now.Add(2 * time.Minute)
	_, _ = m.CheckLimit(ctx, "catalog", "acme", Config{Limit: 5, Window: time.Minute})

	assert.Len(t, m.windows, 2, "elapsed gs1 windows dropped")
	assert.Contains(t, m.windows, windowKey("llm", "acme"))
	assert.Contains(t, m.windows, windowKey("catalog", "acme"))
}

func TestMemory_Unlimited(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 100; i++ {
		st, err := m.CheckLimit(context.Background(), "p", "t", Config{})
		require.NoError(t, err)
		require.True(t, st.Allowed)
	}
}

func TestMemory_NoOverAdmissionUnderLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg := Config{Limit: 10, Window: time.Minute}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := m.CheckLimit(ctx, "gs1", "acme", cfg)
			if err == nil && st.Allowed {
				admitted.Add(1)
				_ = m.RecordRequest(ctx, "gs1", "acme", cfg)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), admitted.Load())
}
