// Package enrich fans one extracted item out to every eligible knowledge
// provider and fuses the partial answers into a single consensus record.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/catalog-enricher/internal/cache"
	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/ratelimit"
	"github.com/sells-group/catalog-enricher/internal/resilience"
)

// AuditSink persists consensus records.
type AuditSink interface {
	SaveConsensus(ctx context.Context, rec *model.ConsensusRecord) error
}

// Orchestrator runs enrichment calls. It is safe for concurrent use.
type Orchestrator struct {
	registry *provider.Registry
	cfg      Config

	cache    *cache.Cache
	limiter  ratelimit.Limiter
	breakers *resilience.ServiceBreakers
	metrics  *monitoring.Metrics
	audit    AuditSink

	flight singleflight.Group
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the provider response cache.
func WithCache(c *cache.Cache) Option { return func(o *Orchestrator) { o.cache = c } }

// WithLimiter sets the admission limiter.
func WithLimiter(l ratelimit.Limiter) Option { return func(o *Orchestrator) { o.limiter = l } }

// WithBreakers sets the per-provider circuit breakers.
func WithBreakers(b *resilience.ServiceBreakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *monitoring.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithAudit persists every consensus record to sink.
func WithAudit(sink AuditSink) Option { return func(o *Orchestrator) { o.audit = sink } }

// New creates an Orchestrator over registry.
func New(registry *provider.Registry, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.OverrideThreshold <= 0 {
		cfg.OverrideThreshold = def.OverrideThreshold
	}
	if cfg.SuppliedConfidence <= 0 {
		cfg.SuppliedConfidence = def.SuppliedConfidence
	}
	if cfg.DefaultCacheTTL == 0 {
		cfg.DefaultCacheTTL = def.DefaultCacheTTL
	}

	o := &Orchestrator{
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limiter == nil {
		o.limiter = ratelimit.NewMemory()
	}
	if o.breakers == nil {
		o.breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return o
}

// Registry returns the provider registry.
func (o *Orchestrator) Registry() *provider.Registry { return o.registry }

// Breakers returns the per-provider circuit breakers.
func (o *Orchestrator) Breakers() *resilience.ServiceBreakers { return o.breakers }

// Enrich consults every eligible provider for item and fuses their answers.
// The only error returned wraps provider.ErrRegistryUnavailable; every
// per-provider failure is folded into the record's audit trail.
func (o *Orchestrator) Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.ConsensusRecord, error) {
	providers, err := o.registry.Eligible(ectx.Sector)
	if err != nil {
		zap.L().Error("enrich: registry unavailable", zap.Error(err))
		return nil, err
	}
	ranks := o.registry.Rank()
	if ectx.RequestID == "" {
		ectx.RequestID = uuid.New().String()
	}

	deadline := o.cfg.Deadline
	if ectx.Deadline > 0 {
		deadline = ectx.Deadline
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
	}
	defer cancel()

	results, incomplete := o.fanOut(runCtx, providers, item, ectx)

	weights := make(map[string]float64, len(providers))
	for _, p := range providers {
		d := p.Descriptor()
		weights[d.Name] = d.ConfidenceWeight
	}

	rec := &model.ConsensusRecord{
		ID:         uuid.New().String(),
		Tenant:     ectx.Tenant,
		Item:       item,
		Results:    results,
		Incomplete: incomplete,
		CreatedAt:  o.now().UTC(),
	}
	rec.Fields = o.fuse(fusionInput{
		results: results,
		weights: weights,
		ranks:   ranks,
		item:    item,
	})

	zap.L().Info("enrich: consensus assembled",
		zap.String("request_id", ectx.RequestID),
		zap.String("tenant", ectx.Tenant),
		zap.String("item", item.Name),
		zap.Int("providers", len(providers)),
		zap.Int("fields", len(rec.Fields)),
		zap.Bool("incomplete", incomplete),
	)

	if o.audit != nil {
		auditCtx, auditCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := o.audit.SaveConsensus(auditCtx, rec); err != nil {
			zap.L().Warn("enrich: persist consensus failed", zap.String("id", rec.ID), zap.Error(err))
		}
		auditCancel()
	}
	return rec, nil
}

// fanOut invokes providers in priority order with bounded concurrency. When
// ctx ends first, providers that have not finished are reported as abandoned.
// The returned flag is true whenever any provider was abandoned.
func (o *Orchestrator) fanOut(ctx context.Context, providers []provider.Provider, item model.ExtractedItem, ectx model.EnrichmentContext) ([]model.EnrichmentResult, bool) {
	var (
		mu     sync.Mutex
		closed bool
		out    = make([]model.EnrichmentResult, len(providers))
		landed = make([]bool, len(providers))
	)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i, p := range providers {
			g.Go(func() error {
				res := o.invoke(ctx, p, item, ectx)
				mu.Lock()
				defer mu.Unlock()
				if !closed {
					out[i] = *res
					landed[i] = true
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true
	// A worker that saw the deadline may land its abandoned result before
	// closed is set.
	incomplete := false
	for i, p := range providers {
		if landed[i] {
			if out[i].Status == model.StatusAbandoned {
				incomplete = true
			}
			continue
		}
		incomplete = true
		name := p.Descriptor().Name
		out[i] = *model.ZeroResult(name, model.StatusAbandoned, "abandoned: orchestration deadline reached")
		o.metrics.ObserveProvider(name, string(model.StatusAbandoned), 0, false)
	}
	return out, incomplete
}

// EnrichAll enriches items with at most concurrency calls in flight. Results
// are returned in input order.
func (o *Orchestrator) EnrichAll(ctx context.Context, items []model.ExtractedItem, ectx model.EnrichmentContext, concurrency int) ([]*model.ConsensusRecord, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]*model.ConsensusRecord, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			call := ectx
			call.RequestID = ""
			rec, err := o.Enrich(gCtx, item, call)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
