package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/model"
)

func okResult(name string, conf float64, values map[string]any) model.EnrichmentResult {
	r := model.NewResult(name)
	for k, v := range values {
		r.Set(k, v)
	}
	r.Matched(conf)
	return *r
}

func ptr(f float64) *float64 { return &f }

func TestFuse_HighestEffectiveWeightWins(t *testing.T) {
	o := New(nil, Config{})
	fields := o.fuse(fusionInput{
		results: []model.EnrichmentResult{
			okResult("taxonomy", 0.6, map[string]any{model.FieldCategory: "Software", model.FieldTaxonomyCode: "62.01"}),
			okResult("llm", 0.9, map[string]any{model.FieldCategory: "SaaS"}),
		},
		weights: map[string]float64{"taxonomy": 0.7, "llm": 0.5},
		ranks:   map[string]int{"taxonomy": 0, "llm": 1},
	})

	assert.Equal(t, "SaaS", fields[model.FieldCategory].Value)
	assert.InDelta(t, 0.45, fields[model.FieldCategory].EffectiveWeight, 1e-9)
	assert.Equal(t, "taxonomy", fields[model.FieldTaxonomyCode].Source)
	assert.Equal(t, 1, fields[model.FieldTaxonomyCode].Candidates)
}

func TestFuse_SkipsNonOKAndFloor(t *testing.T) {
	o := New(nil, Config{MinEffectiveWeight: 0.3})
	failed := okResult("gs1", 0.9, map[string]any{model.FieldBrand: "x"})
	failed.Status = model.StatusFailed

	fields := o.fuse(fusionInput{
		results: []model.EnrichmentResult{
			failed,
			okResult("weak", 0.5, map[string]any{model.FieldCategory: "Software"}),
			okResult("zero", 0.9, map[string]any{model.FieldVendor: "Microsoft"}),
		},
		weights: map[string]float64{"gs1": 1, "weak": 0.5, "zero": 0},
	})

	assert.Empty(t, fields, "no candidate strictly above the floor means no field")
}

func TestFuse_ProviderRankBreaksTies(t *testing.T) {
	o := New(nil, Config{})
	in := fusionInput{
		results: []model.EnrichmentResult{
			okResult("b", 0.9, map[string]any{model.FieldCategory: "B"}),
			okResult("a", 0.8, map[string]any{model.FieldCategory: "A"}),
		},
		weights: map[string]float64{"a": 0.9, "b": 0.8},
		ranks:   map[string]int{"a": 0, "b": 1},
	}
	assert.Equal(t, "a", o.fuse(in)[model.FieldCategory].Source)

	in.ranks = map[string]int{"a": 1, "b": 0}
	assert.Equal(t, "b", o.fuse(in)[model.FieldCategory].Source)
}

func TestFuse_KeepsHighConfidenceSuppliedValue(t *testing.T) {
	o := New(nil, Config{OverrideThreshold: 0.9, SuppliedConfidence: 0.8})
	item := model.ExtractedItem{Name: "Microsoft 365", Vendor: "Microsoft Corporation"}

	fields := o.fuse(fusionInput{
		results: []model.EnrichmentResult{okResult("gs1", 0.9, map[string]any{model.FieldVendor: "MSFT"})},
		weights: map[string]float64{"gs1": 1},
		item:    item,
	})
	got := fields[model.FieldVendor]
	assert.Equal(t, "Microsoft Corporation", got.Value)
	assert.Equal(t, model.SourceCaller, got.Source)
	assert.True(t, got.KeptSupplied)
	assert.Equal(t, 2, got.Candidates)

	fields = o.fuse(fusionInput{
		results: []model.EnrichmentResult{okResult("gs1", 0.95, map[string]any{model.FieldVendor: "MSFT"})},
		weights: map[string]float64{"gs1": 1},
		item:    item,
	})
	got = fields[model.FieldVendor]
	assert.Equal(t, "MSFT", got.Value, "weight above the override threshold replaces caller input")
	assert.False(t, got.KeptSupplied)
}

func TestFuse_LowConfidenceSuppliedCompetes(t *testing.T) {
	o := New(nil, Config{})
	item := model.ExtractedItem{
		Name: "Drill",
		Supplied: map[string]model.SuppliedField{
			model.FieldCategory: {Value: "Hardware", Confidence: ptr(0.3)},
			model.FieldBrand:    {Value: "Bosch", Confidence: ptr(0.4)},
		},
	}

	fields := o.fuse(fusionInput{
		results: []model.EnrichmentResult{okResult("taxonomy", 0.5, map[string]any{model.FieldCategory: "Power Tools"})},
		weights: map[string]float64{"taxonomy": 1},
		item:    item,
	})

	assert.Equal(t, "Power Tools", fields[model.FieldCategory].Value)
	assert.Equal(t, "taxonomy", fields[model.FieldCategory].Source)
	require.Contains(t, fields, model.FieldBrand)
	assert.Equal(t, "Bosch", fields[model.FieldBrand].Value, "uncontested caller values are kept")
	assert.Equal(t, model.SourceCaller, fields[model.FieldBrand].Source)
}

func TestNormalize_RepairsInconsistentResult(t *testing.T) {
	in := &model.EnrichmentResult{
		Provider:   "spoofed",
		Confidence: 1.7,
		Fields:     []string{model.FieldCategory, model.FieldBrand},
		Values:     map[string]any{model.FieldCategory: "Software", model.FieldVendor: "Microsoft"},
	}
	out := normalize("taxonomy", in)

	assert.Equal(t, "taxonomy", out.Provider)
	assert.Equal(t, model.StatusOK, out.Status)
	assert.Equal(t, 1.0, out.Confidence)
	assert.ElementsMatch(t, []string{model.FieldCategory, model.FieldVendor}, out.Fields)

	empty := normalize("taxonomy", &model.EnrichmentResult{Confidence: 0.8})
	assert.Equal(t, model.StatusNoMatch, empty.Status)
	assert.Zero(t, empty.Confidence)
}
