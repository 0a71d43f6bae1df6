// Package typehint guesses whether an item is a product or a service from
// lexical cues in its name and description.
package typehint

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
)

// Name is the default provider name.
const Name = "typehint"

// MaxConfidence caps every typehint proposal.
const MaxConfidence = 0.8

var serviceCues = map[string]bool{
	"service": true, "services": true, "consulting": true, "consultancy": true, "support": true,
	"maintenance": true, "installation": true, "training": true, "repair": true, "hosting": true,
	"subscription": true, "saas": true, "outsourcing": true, "audit": true, "cleaning": true,
	"hourly": true, "hour": true, "hours": true, "monthly": true, "contract": true, "managed": true,
	"onboarding": true, "servizio": true, "servizi": true, "assistenza": true, "consulenza": true,
}

var productCues = map[string]bool{
	"pcs": true, "pieces": true, "piece": true, "pack": true, "box": true, "unit": true, "units": true,
	"model": true, "sku": true, "kit": true, "device": true, "cordless": true, "battery": true,
	"bottle": true, "cable": true, "machine": true, "hardware": true, "laptop": true, "printer": true,
	"pezzi": true, "confezione": true,
}

// measure matches a quantity glued to a unit, such as 18v or 500ml.
var measure = regexp.MustCompile(`^\d+(v|w|mm|cm|m|kg|g|mg|ml|l|gb|tb|mah|in)$`)

// Provider proposes item_type.
type Provider struct {
	desc     provider.Descriptor
	disabled bool
}

// New creates the provider.
func New(desc provider.Descriptor, disabled bool) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	return &Provider{desc: desc, disabled: disabled}
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

func (p *Provider) IsEnabled() bool { return !p.disabled }

func (p *Provider) Initialize(context.Context) error { return nil }

// Enrich counts product and service cues. The side with more cues wins and
// confidence grows with the margin between the two counts.
func (p *Provider) Enrich(_ context.Context, item model.ExtractedItem, _ model.EnrichmentContext) (*model.EnrichmentResult, error) {
	res := model.NewResult(p.desc.Name)

	var products, services []string
	for _, tok := range retrieval.Tokenize(item.Text()) {
		switch {
		case serviceCues[tok]:
			services = append(services, tok)
		case productCues[tok], measure.MatchString(tok):
			products = append(products, tok)
		}
	}

	conf, winner := Score(len(products), len(services))
	if winner == "" {
		res.Reason(fmt.Sprintf("no decisive cue (product %d, service %d)", len(products), len(services)))
		return res, nil
	}
	cues := products
	if winner == model.ItemTypeService {
		cues = services
	}
	res.Set(model.FieldItemType, string(winner))
	res.Matched(conf)
	res.Reason(fmt.Sprintf("%s cues: %s", winner, strings.Join(cues, ", ")))
	return res, nil
}

// Score turns cue counts into a confidence and a winning type. Equal counts
// have no winner.
func Score(products, services int) (float64, model.ItemType) {
	if products == services {
		return 0, ""
	}
	winner, w, l := model.ItemTypeProduct, products, services
	if services > products {
		winner, w, l = model.ItemTypeService, services, products
	}
	margin := float64(w-l) / float64(w+l)
	strength := min(1, 0.5+0.1*float64(w))
	return MaxConfidence * margin * strength, winner
}

var _ provider.Provider = (*Provider)(nil)
