package enrich

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-enricher/internal/cache"
	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
)

// fakeProvider proposes fixed values after an optional delay.
type fakeProvider struct {
	desc       provider.Descriptor
	confidence float64
	values     map[string]any
	delay      func() time.Duration
	ignoreCtx  bool
	err        error
	panicMsg   string
	disabled   bool
	calls      atomic.Int64
}

func newFake(name string, priority int, weight, confidence float64, values map[string]any) *fakeProvider {
	return &fakeProvider{
		desc: provider.Descriptor{
			Name:             name,
			Priority:         priority,
			ConfidenceWeight: weight,
			Sectors:          []string{"*"},
		},
		confidence: confidence,
		values:     values,
	}
}

func (f *fakeProvider) Descriptor() provider.Descriptor { return f.desc }
func (f *fakeProvider) IsEnabled() bool                 { return !f.disabled }
func (f *fakeProvider) Initialize(context.Context) error { return nil }

func (f *fakeProvider) Enrich(ctx context.Context, _ model.ExtractedItem, _ model.EnrichmentContext) (*model.EnrichmentResult, error) {
	f.calls.Add(1)
	if f.delay != nil {
		d := f.delay()
		if f.ignoreCtx {
			time.Sleep(d)
		} else {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	res := model.NewResult(f.desc.Name)
	for k, v := range f.values {
		res.Set(k, v)
	}
	if len(f.values) > 0 {
		res.Matched(f.confidence)
		res.Reason("fake match")
	}
	return res, nil
}

func registryOf(ps ...provider.Provider) *provider.Registry {
	r := provider.NewRegistry()
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

func memCache() *cache.Cache {
	store, err := cache.NewMemoryStore(1000)
	if err != nil {
		panic(err)
	}
	return cache.New(store, "test:", nil)
}

// mockAudit is a testify mock for AuditSink.
type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) SaveConsensus(ctx context.Context, rec *model.ConsensusRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
