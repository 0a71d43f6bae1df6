package model

import (
	"strings"
	"time"
)

// ItemType is the declared nature of an extracted catalog item.
type ItemType string

// Item types.
const (
	ItemTypeProduct ItemType = "product"
	ItemTypeService ItemType = "service"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t == ItemTypeProduct || t == ItemTypeService
}

// Well-known field keys shared by providers and the fusion step.
const (
	FieldCategory       = "category"
	FieldItemType       = "item_type"
	FieldVendor         = "vendor"
	FieldGTIN           = "gtin"
	FieldEAN            = "ean"
	FieldMPN            = "mpn"
	FieldTaxonomyCode   = "taxonomy_code"
	FieldTaxonomySystem = "taxonomy_system"
	FieldBrand          = "brand"
	FieldCanonicalName  = "canonical_name"
	FieldCatalogMatches = "catalog_matches"
)

// SuppliedField is a value the caller already provided for a field.
// A nil Confidence means explicit user input and is treated as 1.0.
type SuppliedField struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// EffectiveConfidence returns the caller's confidence, defaulting to 1.0.
func (s SuppliedField) EffectiveConfidence() float64 {
	if s.Confidence == nil {
		return 1.0
	}
	return *s.Confidence
}

// ExtractedItem is the candidate to classify. It is the immutable input to
// one enrichment pass.
type ExtractedItem struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Type        ItemType                 `json:"type"`
	Vendor      string                   `json:"vendor,omitempty"`
	Category    string                   `json:"category,omitempty"`
	GTIN        string                   `json:"gtin,omitempty"`
	EAN         string                   `json:"ean,omitempty"`
	MPN         string                   `json:"mpn,omitempty"`
	Supplied    map[string]SuppliedField `json:"supplied,omitempty"`
}

// Text returns the name and description joined for lexical matching.
func (i ExtractedItem) Text() string {
	if i.Description == "" {
		return i.Name
	}
	return i.Name + "\n" + i.Description
}

// SuppliedFields returns every caller-provided field, merging the
// first-class optional attributes with the explicit Supplied map. Entries in
// Supplied win over the first-class attributes.
func (i ExtractedItem) SuppliedFields() map[string]SuppliedField {
	out := make(map[string]SuppliedField, len(i.Supplied)+5)
	add := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			out[key] = SuppliedField{Value: val}
		}
	}
	add(FieldVendor, i.Vendor)
	add(FieldCategory, i.Category)
	add(FieldGTIN, i.GTIN)
	add(FieldEAN, i.EAN)
	add(FieldMPN, i.MPN)
	for k, v := range i.Supplied {
		out[k] = v
	}
	return out
}

// Identifier returns the first non-empty trade identifier (GTIN, EAN, MPN).
func (i ExtractedItem) Identifier() string {
	for _, id := range []string{i.GTIN, i.EAN, i.MPN} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

// EnrichmentContext carries per-call parameters scoped to a single
// orchestration call.
type EnrichmentContext struct {
	Tenant      string        `json:"tenant"`
	Sector      string        `json:"sector,omitempty"`
	BypassCache bool          `json:"bypass_cache,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	Deadline    time.Duration `json:"deadline,omitempty"`
}
