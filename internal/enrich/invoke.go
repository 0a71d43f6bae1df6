package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/cache"
	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/ratelimit"
	"github.com/sells-group/catalog-enricher/internal/resilience"
)

// CacheKey derives the cache key of one provider answer. Tenant is always
// part of the key so tenant-scoped answers never cross tenants.
func CacheKey(item model.ExtractedItem, ectx model.EnrichmentContext) string {
	return cache.Key(
		ectx.Tenant,
		ectx.Sector,
		string(item.Type),
		item.Name,
		item.Description,
		item.Vendor,
		item.Identifier(),
	)
}

// invoke produces one result for p. It never returns nil and never panics.
func (o *Orchestrator) invoke(ctx context.Context, p provider.Provider, item model.ExtractedItem, ectx model.EnrichmentContext) *model.EnrichmentResult {
	desc := p.Descriptor()
	start := time.Now()

	if ctx.Err() != nil {
		res := model.ZeroResult(desc.Name, model.StatusAbandoned, "abandoned: orchestration deadline reached")
		o.observe(desc, ectx, res, start, false)
		return res
	}

	key := CacheKey(item, ectx)
	if !ectx.BypassCache {
		if raw, ok := o.cache.Get(ctx, desc.Name, key); ok {
			if res, err := decodeResult(raw); err == nil {
				res.Cached = true
				o.observe(desc, ectx, res, start, false)
				return res
			}
		}
	}

	// Identical concurrent misses share one outbound call. The shared call is
	// detached from every caller and bounded only by the per-call timeout, so
	// one caller's deadline never ends another caller's answer. Each caller
	// waits on its own context and decodes its own copy of the bytes.
	flightKey := desc.Name + "|" + key
	shared := context.WithoutCancel(ctx)
	ch := o.flight.DoChan(flightKey, func() (any, error) {
		return o.live(shared, p, desc, item, ectx, key), nil
	})

	var res *model.EnrichmentResult
	select {
	case r := <-ch:
		var err error
		if res, err = decodeResult(r.Val.([]byte)); err != nil {
			res = model.ZeroResult(desc.Name, model.StatusFailed, "malformed result: "+err.Error())
		}
	case <-ctx.Done():
		res = model.ZeroResult(desc.Name, model.StatusAbandoned, "abandoned: orchestration deadline reached")
	}
	o.observe(desc, ectx, res, start, true)
	return res
}

// live performs breaker and limiter admission, the provider call, and the
// cache refresh. It returns the canonical JSON encoding of the result.
func (o *Orchestrator) live(ctx context.Context, p provider.Provider, desc provider.Descriptor, item model.ExtractedItem, ectx model.EnrichmentContext, key string) []byte {
	cb := o.breakers.Get(desc.Name)
	if err := cb.Allow(); err != nil {
		return mustEncode(model.ZeroResult(desc.Name, model.StatusCircuitOpen, "skipped: circuit breaker open"))
	}

	limit := o.rateLimitFor(desc)
	st, err := o.limiter.CheckLimit(ctx, desc.Name, ectx.Tenant, limit)
	if err != nil {
		// Limiter backend failures admit the call.
		zap.L().Warn("enrich: rate limiter unavailable", zap.String("provider", desc.Name), zap.Error(err))
		st.Allowed = true
	}
	if !st.Allowed {
		cb.Cancel()
		o.metrics.ObserveRateLimited(desc.Name)
		reason := fmt.Sprintf("skipped: rate limit of %d per %s reached, resets at %s",
			limit.Limit, limit.Window, st.ResetAt.UTC().Format(time.RFC3339))
		return mustEncode(model.ZeroResult(desc.Name, model.StatusRateLimited, reason))
	}

	res, callErr := o.call(ctx, p, desc, item, ectx)
	if err := o.limiter.RecordRequest(ctx, desc.Name, ectx.Tenant, limit); err != nil {
		zap.L().Debug("enrich: record request failed", zap.String("provider", desc.Name), zap.Error(err))
	}
	if res.Status == model.StatusAbandoned {
		cb.Cancel()
	} else {
		cb.Record(callErr)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		res = model.ZeroResult(desc.Name, model.StatusFailed, "malformed result: unencodable values")
		return mustEncode(res)
	}
	if res.Status == model.StatusOK || res.Status == model.StatusNoMatch {
		o.cache.Set(ctx, desc.Name, key, raw, o.cacheTTLFor(desc))
	}
	return raw
}

// call runs the provider under its per-call timeout and converts every
// failure mode into a zero-confidence result. The returned error is what
// the circuit breaker records.
func (o *Orchestrator) call(ctx context.Context, p provider.Provider, desc provider.Descriptor, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error) {
	timeout := o.cfg.CallTimeout
	if desc.Timeout > 0 {
		timeout = desc.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *model.EnrichmentResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: eris.Errorf("enrich: provider %s panicked: %v", desc.Name, r)}
			}
		}()
		res, err := p.Enrich(callCtx, item, ectx)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			status := resilience.Classify(out.err)
			if ctx.Err() != nil {
				status = model.StatusAbandoned
			}
			return model.ZeroResult(desc.Name, status, "error: "+out.err.Error()), out.err
		}
		if out.res == nil {
			err := eris.Errorf("enrich: provider %s returned no result", desc.Name)
			return model.ZeroResult(desc.Name, model.StatusFailed, "malformed result: nil"), err
		}
		return normalize(desc.Name, out.res), nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return model.ZeroResult(desc.Name, model.StatusAbandoned, "abandoned: orchestration deadline reached"), nil
		}
		err := eris.Wrapf(callCtx.Err(), "enrich: provider %s timed out after %s", desc.Name, timeout)
		return model.ZeroResult(desc.Name, model.StatusTimeout, fmt.Sprintf("timeout: no answer within %s", timeout)), err
	}
}

// normalize makes a provider result internally consistent: the provider
// name is authoritative, confidence is clamped, every value has its field
// listed and every listed field has a value.
func normalize(name string, in *model.EnrichmentResult) *model.EnrichmentResult {
	out := model.NewResult(name)
	out.Reasoning = append(out.Reasoning, in.Reasoning...)
	for _, f := range in.Fields {
		if v, ok := in.Values[f]; ok {
			out.Set(f, v)
		}
	}
	for f, v := range in.Values {
		if _, ok := out.Values[f]; !ok {
			out.Set(f, v)
		}
	}
	switch {
	case in.Status != "" && in.Status != model.StatusOK:
		out.Status = in.Status
	case in.Confidence > 0 && len(out.Fields) > 0:
		out.Matched(in.Confidence)
	}
	return out
}

func (o *Orchestrator) rateLimitFor(desc provider.Descriptor) ratelimit.Config {
	if desc.RateLimit.Limit > 0 && desc.RateLimit.Window > 0 {
		return ratelimit.Config{Limit: desc.RateLimit.Limit, Window: desc.RateLimit.Window}
	}
	if desc.RateLimit.Limit < 0 {
		return ratelimit.Config{}
	}
	return o.cfg.DefaultRateLimit
}

// cacheTTLFor returns the provider's TTL. A negative descriptor TTL disables
// caching, zero falls back to the default.
func (o *Orchestrator) cacheTTLFor(desc provider.Descriptor) time.Duration {
	switch {
	case desc.CacheTTL < 0:
		return 0
	case desc.CacheTTL > 0:
		return desc.CacheTTL
	default:
		return o.cfg.DefaultCacheTTL
	}
}

func (o *Orchestrator) observe(desc provider.Descriptor, ectx model.EnrichmentContext, res *model.EnrichmentResult, start time.Time, live bool) {
	d := time.Since(start)
	if live {
		res.Duration = d
	}
	o.metrics.ObserveProvider(desc.Name, string(res.Status), d, live)

	fields := []zap.Field{
		zap.String("provider", desc.Name),
		zap.String("tenant", ectx.Tenant),
		zap.String("request_id", ectx.RequestID),
		zap.String("status", string(res.Status)),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("cached", res.Cached),
		zap.Duration("duration", d),
	}
	switch res.Status {
	case model.StatusFailed, model.StatusTimeout:
		zap.L().Warn("enrich: provider call failed", append(fields, zap.Strings("reasoning", res.Reasoning))...)
	default:
		zap.L().Info("enrich: provider call", fields...)
	}
}

func decodeResult(raw []byte) (*model.EnrichmentResult, error) {
	var res model.EnrichmentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, eris.Wrap(err, "enrich: decode result")
	}
	if res.Values == nil {
		res.Values = make(map[string]any)
	}
	return &res, nil
}

func mustEncode(res *model.EnrichmentResult) []byte {
	raw, _ := json.Marshal(res)
	return raw
}
