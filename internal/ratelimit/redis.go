package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// reserveScript claims one slot in the window stored at KEYS[1]. The first
// claim sets the window expiry. Returns {allowed, count, pttl}.
var reserveScript = redis.NewScript(`
local count = tonumber(redis.call("get", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if count >= limit then
	return {0, count, redis.call("pttl", KEYS[1])}
end
count = redis.call("incr", KEYS[1])
if count == 1 then
	redis.call("pexpire", KEYS[1], ARGV[2])
end
return {1, count, redis.call("pttl", KEYS[1])}
`)

// Redis is a fixed-window limiter shared across processes. The window counter
// lives in one key per pair and is only mutated inside Lua scripts.
type Redis struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedis creates a limiter storing windows under prefix.
func NewRedis(client redis.Scripter, prefix string) *Redis {
	if prefix == "" {
		prefix = "enrich:ratelimit:"
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) key(provider, tenant string) string {
	return r.prefix + windowKey(provider, tenant)
}

func (r *Redis) CheckLimit(ctx context.Context, provider, tenant string, cfg Config) (Status, error) {
	if cfg.Unlimited() {
		return Status{Allowed: true}, nil
	}
	res, err := reserveScript.Run(ctx, r.client, []string{r.key(provider, tenant)},
		cfg.Limit, cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Status{}, eris.Wrapf(err, "ratelimit: reserve %s/%s", provider, tenant)
	}
	if len(res) != 3 {
		return Status{}, eris.Errorf("ratelimit: unexpected reply length %d", len(res))
	}
	pttl := time.Duration(res[2]) * time.Millisecond
	if pttl < 0 {
		pttl = cfg.Window
	}
	return Status{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   cfg.Limit,
		ResetAt: r.now().Add(pttl),
	}, nil
}

// RecordRequest is a no-op: the slot claimed by CheckLimit already counts.
func (r *Redis) RecordRequest(context.Context, string, string, Config) error {
	return nil
}

var (
	_ Limiter = (*Memory)(nil)
	_ Limiter = (*Redis)(nil)
)
