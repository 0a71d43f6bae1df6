package provider

import (
	"context"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// EnrichFunc is the signature of Provider.Enrich.
type EnrichFunc func(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error)

// Func adapts a plain function into an always-enabled Provider.
type Func struct {
	Desc Descriptor
	Fn   EnrichFunc
	// Disabled turns IsEnabled off.
	Disabled bool
}

func (f *Func) Descriptor() Descriptor { return f.Desc }

func (f *Func) IsEnabled() bool { return !f.Disabled && f.Fn != nil }

func (f *Func) Initialize(context.Context) error { return nil }

func (f *Func) Enrich(ctx context.Context, item model.ExtractedItem, ectx model.EnrichmentContext) (*model.EnrichmentResult, error) {
	return f.Fn(ctx, item, ectx)
}
