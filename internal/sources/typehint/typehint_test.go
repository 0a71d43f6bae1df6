package typehint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		p, s     int
		wantType model.ItemType
		wantConf float64
	}{
		{"none", 0, 0, "", 0},
		{"tie", 2, 2, "", 0},
		{"one product cue", 1, 0, model.ItemTypeProduct, 0.8 * 0.6},
		{"strong service", 0, 5, model.ItemTypeService, 0.8},
		{"mixed", 1, 3, model.ItemTypeService, 0.8 * 0.5 * 0.8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf, typ := Score(tc.p, tc.s)
			assert.Equal(t, tc.wantType, typ)
			assert.InDelta(t, tc.wantConf, conf, 1e-9)
		})
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	p := New(provider.Descriptor{}, false)
	ctx := context.Background()

	res, err := p.Enrich(ctx, model.ExtractedItem{Name: "Cordless hammer drill 18V", Description: "Kit with battery"}, model.EnrichmentContext{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, "product", res.Values[model.FieldItemType])
	assert.Contains(t, res.Reasoning[0], "18v")

	res, err = p.Enrich(ctx, model.ExtractedItem{Name: "IT consulting", Description: "Billed hourly, managed support contract"}, model.EnrichmentContext{})
	require.NoError(t, err)
	assert.Equal(t, "service", res.Values[model.FieldItemType])
	assert.InDelta(t, MaxConfidence, res.Confidence, 1e-9)

	res, err = p.Enrich(ctx, model.ExtractedItem{Name: "Microsoft 365"}, model.EnrichmentContext{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoMatch, res.Status)
	assert.Empty(t, res.Fields)
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	assert.True(t, New(provider.Descriptor{}, false).IsEnabled())
	assert.False(t, New(provider.Descriptor{}, true).IsEnabled())
	assert.Equal(t, Name, New(provider.Descriptor{}, false).Descriptor().Name)
	assert.NoError(t, New(provider.Descriptor{}, false).Initialize(context.Background()))
}
