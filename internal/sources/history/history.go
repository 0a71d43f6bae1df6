// Package history is the company-history provider: a per-tenant index of
// user-validated classifications that is searched before any other source
// and written synchronously whenever a user validates a correction.
package history

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/internal/vectorstore"
)

// Name is the default provider name.
const Name = "company_history"

// DefaultMinSimilarity is the lowest similarity a validated entry may have
// to be proposed.
const DefaultMinSimilarity = 0.5

// Metadata keys stored with every history passage.
const (
	metaItemName    = "item_name"
	metaItemType    = "item_type"
	metaFields      = "fields"
	metaConfidence  = "confidence"
	metaValidatedAt = "validated_at"
)

// ValidationStore is the relational side of company history.
type ValidationStore interface {
	SaveValidation(ctx context.Context, v *model.Validation) error
	ListValidations(ctx context.Context, tenant string) ([]model.Validation, error)
	ListTenants(ctx context.Context) ([]string, error)
}

// Index is the retrieval side of company history.
type Index interface {
	Search(ctx context.Context, tenant, query string, opts retrieval.Options) ([]retrieval.SearchResult, error)
	UpsertDocuments(ctx context.Context, tenant string, docs []retrieval.Document) (int, error)
}

// Config tunes the provider.
type Config struct {
	// Tenants are warmed up on Initialize. Empty warms every tenant the
	// store knows.
	Tenants       []string    `yaml:"tenants" json:"tenants"`
	MinSimilarity float64     `yaml:"min_similarity" json:"min_similarity"`
	Decay         DecayConfig `yaml:"decay" json:"decay"`
}

// Provider searches a tenant's validated history.
type Provider struct {
	desc  provider.Descriptor
	store ValidationStore
	index Index
	cfg   Config

	mu     sync.RWMutex
	loaded map[string]bool
	flight singleflight.Group
	now    func() time.Time
}

// New creates the provider. store may be nil, in which case history lives
// only in the index for the life of the process.
func New(desc provider.Descriptor, index Index, store ValidationStore, cfg Config) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	desc.TenantScoped = true
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	return &Provider{
		desc:   desc,
		store:  store,
		index:  index,
		cfg:    cfg,
		loaded: make(map[string]bool),
		now:    time.Now,
	}
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

// IsEnabled reports whether an index is wired.
func (p *Provider) IsEnabled() bool { return p.index != nil }

// Initialize warms the configured tenants from the store. Tenants already
// loaded are skipped, so repeated calls are cheap.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.store == nil || p.index == nil {
		return nil
	}
	tenants := p.cfg.Tenants
	if len(tenants) == 0 {
		var err error
		tenants, err = p.store.ListTenants(ctx)
		if err != nil {
			return eris.Wrap(err, "history: list tenants")
		}
	}
	for _, tenant := range tenants {
		if err := p.ensureLoaded(ctx, tenant); err != nil {
			return err
		}
	}
	return nil
}

// ensureLoaded loads tenant's validations into the index once. Concurrent
// first uses of the same tenant share one load.
func (p *Provider) ensureLoaded(ctx context.Context, tenant string) error {
	tenant = strings.TrimSpace(tenant)
	if p.store == nil || p.isLoaded(tenant) {
		return nil
	}
	_, err, _ := p.flight.Do(tenant, func() (any, error) {
		if p.isLoaded(tenant) {
			return nil, nil
		}
		vs, err := p.store.ListValidations(ctx, tenant)
		if err != nil {
			return nil, eris.Wrapf(err, "history: list validations for %s", tenant)
		}
		docs := make([]retrieval.Document, 0, len(vs))
		for i := range vs {
			if vs[i].Normalize() {
				docs = append(docs, document(&vs[i]))
			}
		}
		if len(docs) > 0 {
			if _, err := p.index.UpsertDocuments(ctx, tenant, docs); err != nil {
				return nil, eris.Wrapf(err, "history: index validations for %s", tenant)
			}
		}
		p.mu.Lock()
		p.loaded[tenant] = true
		p.mu.Unlock()
		zap.L().Info("history: tenant loaded", zap.String("tenant", tenant), zap.Int("validations", len(docs)))
		return nil, nil
	})
	return err
}

func (p *Provider) isLoaded(tenant string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded[tenant]
}

// Record persists a validated correction and indexes it before returning,
// so the next enrichment call for the tenant already sees it.
func (p *Provider) Record(ctx context.Context, v *model.Validation) error {
	if p.index == nil {
		return eris.New("history: no index configured")
	}
	if p.store != nil {
		if err := p.store.SaveValidation(ctx, v); err != nil {
			return eris.Wrap(err, "history: save validation")
		}
	} else {
		if !v.Normalize() {
			return eris.New("history: validation requires tenant, item name and fields")
		}
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
	}

	if err := p.ensureLoaded(ctx, v.Tenant); err != nil {
		return err
	}
	if _, err := p.index.UpsertDocuments(ctx, v.Tenant, []retrieval.Document{document(v)}); err != nil {
		return eris.Wrapf(err, "history: index validation %s", v.ID)
	}
	zap.L().Info("history: validation recorded",
		zap.String("tenant", v.Tenant),
		zap.String("id", v.ID),
		zap.String("item", v.ItemName),
	)
	return nil
}

// Enrich proposes the fields of the most similar validated entry.
func (p *Provider) Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error) {
	res := model.NewResult(p.desc.Name)
	tenant := strings.TrimSpace(ectx.Tenant)
	if tenant == "" {
		res.Reason("no tenant: company history is tenant-scoped")
		return res, nil
	}
	if err := p.ensureLoaded(ctx, tenant); err != nil {
		return nil, err
	}

	hits, err := p.index.Search(ctx, tenant, item.Text(), retrieval.Options{
		Limit:         1,
		MinSimilarity: p.cfg.MinSimilarity,
		Collection:    vectorstore.CollectionHistory,
	})
	if err != nil {
		return nil, eris.Wrap(err, "history: search")
	}
	if len(hits) == 0 {
		res.Reason("no validated entry is similar enough")
		return res, nil
	}

	best := hits[0]
	fields, _ := best.Metadata[metaFields].(map[string]any)
	if len(fields) == 0 {
		res.Reason(fmt.Sprintf("validated entry %s carries no fields", best.ID))
		return res, nil
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		res.Set(k, fields[k])
	}
	if t, ok := best.Metadata[metaItemType].(string); ok && model.ItemType(t).Valid() {
		if _, set := res.Values[model.FieldItemType]; !set {
			res.Set(model.FieldItemType, t)
		}
	}

	raw := toFloat(best.Metadata[metaConfidence])
	decayed := DecayedConfidence(raw, parseTime(best.Metadata[metaValidatedAt]), p.now(), p.cfg.Decay)
	res.Matched(best.Score * decayed)
	res.Reason(fmt.Sprintf("matched validated entry %q (similarity %.2f, confidence %.2f)",
		best.Metadata[metaItemName], best.Score, decayed))
	return res, nil
}

// document maps a validation onto a history passage.
func document(v *model.Validation) retrieval.Document {
	text := v.ItemName
	if v.Description != "" {
		text += "\n" + v.Description
	}
	return retrieval.Document{
		ID:         v.ID,
		Text:       text,
		Collection: vectorstore.CollectionHistory,
		Metadata: map[string]any{
			metaItemName:    v.ItemName,
			metaItemType:    string(v.ItemType),
			metaFields:      maps.Clone(v.Fields),
			metaConfidence:  v.Confidence,
			metaValidatedAt: v.ValidatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func parseTime(v any) time.Time {
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ provider.Provider = (*Provider)(nil)
