package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	return mr, NewRedis(client, "test:rl:")
}

func TestRedis_AdmitsUpToLimit(t *testing.T) {
	ctx := context.Background()
	_, rl := newRedisLimiter(t)
	cfg := Config{Limit: 2, Window: time.Minute}

	for i := 1; i <= 2; i++ {
		st, err := rl.CheckLimit(ctx, "gs1", "acme", cfg)
		require.NoError(t, err)
		assert.True(t, st.Allowed)
		assert.Equal(t, i, st.Count)
	}

	st, err := rl.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.WithinDuration(t, time.Now().Add(time.Minute), st.ResetAt, 2*time.Second)
}

func TestRedis_WindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, rl := newRedisLimiter(t)
	cfg := Config{Limit: 1, Window: time.Minute}

	st, err := rl.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	require.True(t, st.Allowed)
	assert.True(t, mr.Exists("test:rl:gs1|acme"))

	mr.FastForward(61 * time.Second)
	st, err = rl.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
}

func TestRedis_RecordRequestDoesNotCountTwice(t *testing.T) {
	ctx := context.Background()
	_, rl := newRedisLimiter(t)
	cfg := Config{Limit: 2, Window: time.Minute}

	st, err := rl.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	require.True(t, st.Allowed)
	require.NoError(t, rl.RecordRequest(ctx, "gs1", "acme", cfg))

	st, err = rl.CheckLimit(ctx, "gs1", "acme", cfg)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Count)
}

func TestRedis_BackendDown(t *testing.T) {
	mr, rl := newRedisLimiter(t)
	mr.Close()

	_, err := rl.CheckLimit(context.Background(), "gs1", "acme", Config{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}

func TestRedis_NoOverAdmissionUnderLoad(t *testing.T) {
	ctx := context.Background()
	_, rl := newRedisLimiter(t)
	cfg := Config{Limit: 5, Window: time.Minute}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := rl.CheckLimit(ctx, "gs1", "acme", cfg)
			if err == nil && st.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5), admitted.Load())
}
