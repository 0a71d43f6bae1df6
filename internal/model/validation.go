package model

import (
	"strings"
	"time"
)

// Validation is a user-validated classification for one tenant. Validations
// feed the company-history provider.
type Validation struct {
	ID          string         `json:"id"`
	Tenant      string         `json:"tenant"`
	ItemName    string         `json:"item_name"`
	Description string         `json:"description,omitempty"`
	ItemType    ItemType       `json:"item_type,omitempty"`
	Fields      map[string]any `json:"fields"`
	Confidence  float64        `json:"confidence"`
	ValidatedBy string         `json:"validated_by,omitempty"`
	ValidatedAt time.Time      `json:"validated_at"`
}

// Normalize trims text and fills defaults. It returns false when the
// validation lacks a tenant, a name, or any field.
func (v *Validation) Normalize() bool {
	v.Tenant = strings.TrimSpace(v.Tenant)
	v.ItemName = strings.TrimSpace(v.ItemName)
	if v.Tenant == "" || v.ItemName == "" || len(v.Fields) == 0 {
		return false
	}
	if v.Confidence <= 0 || v.Confidence > 1 {
		v.Confidence = 1.0
	}
	if v.ValidatedAt.IsZero() {
		v.ValidatedAt = time.Now().UTC()
	}
	return true
}
