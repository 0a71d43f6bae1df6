package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/pkg/anthropic"
)

// classifyPrompt is the system prompt for catalog classification.
const classifyPrompt = `You classify line items extracted from company documents into a product and service catalog. For the item given, decide:
- item_type: "product" for physical or licensed goods, "service" for work performed or recurring support
- category: a concise catalog category such as "Productivity Software", "Power Tools", "IT Services"
- vendor: the manufacturer or provider, if identifiable
- confidence: 0.0 to 1.0, how sure you are of the category

Respond with ONLY valid JSON, no other text:
{"item_type": "product", "category": "", "vendor": "", "confidence": 0.0, "reasoning": "brief explanation"}`

// Classification is the model's view of one item.
type Classification struct {
	ItemType   model.ItemType `json:"item_type"`
	Category   string         `json:"category"`
	Vendor     string         `json:"vendor"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
}

// Classify asks the model for item type, category and vendor.
func (s *Service) Classify(ctx context.Context, item model.ExtractedItem, sector string) (*Classification, error) {
	text, err := s.ask(ctx, "classify", classifyPrompt, classifyInput(item, sector), 0)
	if err != nil {
		return nil, err
	}
	var c Classification
	if err := anthropic.DecodeJSON(text, &c); err != nil {
		return nil, eris.Wrap(err, "llm: classify")
	}
	c.Category = strings.TrimSpace(c.Category)
	c.Vendor = strings.TrimSpace(c.Vendor)
	if !c.ItemType.Valid() {
		c.ItemType = ""
	}
	c.Confidence = max(0, min(1, c.Confidence))
	return &c, nil
}

func classifyInput(item model.ExtractedItem, sector string) string {
	in := map[string]string{"name": item.Name}
	if item.Description != "" {
		in["description"] = item.Description
	}
	if item.Type != "" {
		in["declared_type"] = string(item.Type)
	}
	if item.Vendor != "" {
		in["vendor_hint"] = item.Vendor
	}
	if sector != "" {
		in["company_sector"] = sector
	}
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Sprintf("name: %s", item.Name)
	}
	return string(b)
}
