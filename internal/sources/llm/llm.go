// Package llm is the fallback provider that asks a language model to
// classify items no other source could resolve.
package llm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	llmsvc "github.com/sells-group/catalog-enricher/internal/llm"
	"github.com/sells-group/catalog-enricher/internal/model"
)

// Name is the default provider name.
const Name = "llm"

// Classifier is the model-backed classifier.
type Classifier interface {
	Classify(ctx context.Context, item model.ExtractedItem, sector string) (*llmsvc.Classification, error)
}

// Provider proposes item_type, category and vendor from the model.
type Provider struct {
	desc provider.Descriptor
	cls  Classifier
}

// New creates the provider. A nil classifier disables it.
func New(desc provider.Descriptor, cls Classifier) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	return &Provider{desc: desc, cls: cls}
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

func (p *Provider) IsEnabled() bool { return p.cls != nil }

func (p *Provider) Initialize(context.Context) error { return nil }

func (p *Provider) Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error) {
	c, err := p.cls.Classify(ctx, item, ectx.Sector)
	if err != nil {
		return nil, eris.Wrap(err, "llm: classify")
	}

	res := model.NewResult(p.desc.Name)
	if c.ItemType != "" {
		res.Set(model.FieldItemType, string(c.ItemType))
	}
	if c.Category != "" {
		res.Set(model.FieldCategory, c.Category)
	}
	if c.Vendor != "" {
		res.Set(model.FieldVendor, c.Vendor)
	}
	if c.Reasoning != "" {
		res.Reason(c.Reasoning)
	}
	if len(res.Fields) == 0 || c.Confidence <= 0 {
		res.Reason(fmt.Sprintf("model gave no usable classification (confidence %.2f)", c.Confidence))
		res.Values = map[string]any{}
		res.Fields = nil
		return res, nil
	}
	res.Matched(c.Confidence)
	return res, nil
}

var _ provider.Provider = (*Provider)(nil)
