// Package gs1 validates trade identifiers and looks them up in a GS1-style
// product registry.
package gs1

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	gs1client "github.com/sells-group/catalog-enricher/pkg/gs1"
)

// Name is the default provider name.
const Name = "gs1"

// RegistryConfidence is reported for a registry hit.
const RegistryConfidence = 0.9

// Provider looks up GTIN and EAN codes.
type Provider struct {
	desc   provider.Descriptor
	client gs1client.Client
	retry  resilience.RetryConfig
}

// New creates the provider. A nil client disables it.
func New(desc provider.Descriptor, client gs1client.Client, retry resilience.RetryConfig) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	retry.ShouldRetry = func(err error) bool {
		return gs1client.Retryable(err) || resilience.IsTransient(err)
	}
	retry.OnRetry = resilience.RetryLogger(desc.Name, "lookup")
	return &Provider{desc: desc, client: client, retry: retry}
}

// FromConfig builds the HTTP-backed provider. Without an API key the
// provider is disabled.
func FromConfig(desc provider.Descriptor, cfg config.GS1Config, retry resilience.RetryConfig) *Provider {
	if cfg.Key == "" {
		return New(desc, nil, retry)
	}
	opts := []gs1client.Option{gs1client.WithRateLimit(cfg.RPS, cfg.Burst)}
	if cfg.BaseURL != "" {
		opts = append(opts, gs1client.WithBaseURL(cfg.BaseURL))
	}
	return New(desc, gs1client.NewClient(cfg.Key, opts...), retry)
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

func (p *Provider) IsEnabled() bool { return p.client != nil }

func (p *Provider) Initialize(context.Context) error { return nil }

// Enrich validates the item's GTIN or EAN and proposes the registry record.
func (p *Provider) Enrich(ctx context.Context, item model.ExtractedItem, _ model.EnrichmentContext) (*model.EnrichmentResult, error) {
	res := model.NewResult(p.desc.Name)

	raw := item.GTIN
	if raw == "" {
		raw = item.EAN
	}
	if raw == "" {
		res.Reason("no GTIN or EAN supplied")
		return res, nil
	}
	code, err := gs1client.NormalizeGTIN(raw)
	if err != nil {
		res.Reason(fmt.Sprintf("identifier %q rejected: %v", raw, err))
		return res, nil
	}

	prod, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*gs1client.Product, error) {
		return p.client.Lookup(ctx, code)
	})
	if eris.Is(err, gs1client.ErrNotFound) {
		res.Reason(fmt.Sprintf("GTIN %s not in registry", code))
		return res, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "gs1: lookup %s", code)
	}

	res.Set(model.FieldGTIN, code)
	res.Set(model.FieldItemType, string(model.ItemTypeProduct))
	set := func(field, v string) {
		if v != "" {
			res.Set(field, v)
		}
	}
	set(model.FieldBrand, prod.Brand)
	set(model.FieldVendor, prod.Company)
	set(model.FieldCategory, prod.Category)
	set(model.FieldCanonicalName, prod.Description)
	if prod.CategoryCode != "" {
		res.Set(model.FieldTaxonomyCode, prod.CategoryCode)
		res.Set(model.FieldTaxonomySystem, "GPC")
	}
	res.Matched(RegistryConfidence)
	res.Reason(fmt.Sprintf("registry record for GTIN %s", code))
	return res, nil
}

var _ provider.Provider = (*Provider)(nil)
