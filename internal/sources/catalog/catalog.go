// Package catalog proposes fields from the tenant's own indexed catalog.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/internal/vectorstore"
)

// Name is the default provider name.
const Name = "catalog"

// proposable lists the metadata keys copied from the best catalog entry.
var proposable = []string{
	model.FieldCategory,
	model.FieldItemType,
	model.FieldVendor,
	model.FieldBrand,
	model.FieldGTIN,
	model.FieldEAN,
	model.FieldMPN,
	model.FieldTaxonomyCode,
	model.FieldTaxonomySystem,
	model.FieldCanonicalName,
}

// Searcher is the retrieval engine as seen by this provider.
type Searcher interface {
	Search(ctx context.Context, tenant, query string, opts retrieval.Options) ([]retrieval.SearchResult, error)
}

// Config tunes catalog search.
type Config struct {
	Limit         int     `yaml:"limit" json:"limit"`
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
	// Dense disables BM25 fusion.
	Dense     bool    `yaml:"dense" json:"dense"`
	Alpha     float64 `yaml:"alpha" json:"alpha"`
	Expansion string  `yaml:"expansion" json:"expansion"`
	// MaxConfidence scales the best match score into a confidence.
	MaxConfidence float64 `yaml:"max_confidence" json:"max_confidence"`
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.3
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = retrieval.DefaultAlpha
	}
	if c.MaxConfidence <= 0 || c.MaxConfidence > 1 {
		c.MaxConfidence = 0.8
	}
	return c
}

// Provider searches the tenant's catalog collection.
type Provider struct {
	desc   provider.Descriptor
	search Searcher
	cfg    Config
}

// New creates the provider.
func New(desc provider.Descriptor, s Searcher, cfg Config) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	desc.TenantScoped = true
	return &Provider{desc: desc, search: s, cfg: cfg.withDefaults()}
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

func (p *Provider) IsEnabled() bool { return p.search != nil }

func (p *Provider) Initialize(context.Context) error { return nil }

// Enrich runs an adaptive hybrid search with the item text and proposes the
// top entry's metadata along with the ranked match list.
func (p *Provider) Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error) {
	res := model.NewResult(p.desc.Name)
	if strings.TrimSpace(ectx.Tenant) == "" {
		res.Reason("no tenant: catalog search is tenant-scoped")
		return res, nil
	}

	hits, err := p.search.Search(ctx, ectx.Tenant, item.Text(), retrieval.Options{
		Limit:             p.cfg.Limit,
		MinSimilarity:     p.cfg.MinSimilarity,
		Hybrid:            !p.cfg.Dense,
		Alpha:             retrieval.WithAlpha(p.cfg.Alpha),
		Expansion:         p.cfg.Expansion,
		AdaptiveThreshold: true,
		Collection:        vectorstore.CollectionCatalog,
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: search")
	}
	if len(hits) == 0 {
		res.Reason("no catalog entry matched")
		return res, nil
	}

	matches := make([]map[string]any, len(hits))
	for i, h := range hits {
		matches[i] = map[string]any{"id": h.ID, "score": h.Score}
	}

	best := hits[0]
	for _, key := range proposable {
		v, ok := best.Metadata[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		res.Set(key, v)
	}
	res.Set(model.FieldCatalogMatches, matches)
	res.Matched(best.Score * p.cfg.MaxConfidence)
	res.Reason(fmt.Sprintf("best catalog entry %s (score %.2f) of %d", best.ID, best.Score, len(hits)))
	return res, nil
}

var _ provider.Provider = (*Provider)(nil)
