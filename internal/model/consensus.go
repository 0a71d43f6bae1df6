package model

import "time"

// SourceCaller marks a field kept from caller-supplied input.
const SourceCaller = "caller"

// FieldDecision records which provider won a field and why.
type FieldDecision struct {
	Value           any     `json:"value"`
	Source          string  `json:"source"`
	EffectiveWeight float64 `json:"effective_weight"`
	Confidence      float64 `json:"confidence"`
	Candidates      int     `json:"candidates"`
	KeptSupplied    bool    `json:"kept_supplied,omitempty"`
}

// ConsensusRecord is the fused, single-valued-per-field output of one
// enrichment call, with the full per-provider trail for audit.
type ConsensusRecord struct {
	ID         string                   `json:"id"`
	Tenant     string                   `json:"tenant"`
	Item       ExtractedItem            `json:"item"`
	Fields     map[string]FieldDecision `json:"fields"`
	Results    []EnrichmentResult       `json:"results"`
	Incomplete bool                     `json:"incomplete"`
	CreatedAt  time.Time                `json:"created_at"`
}

// Value returns the chosen value for field and whether it is present.
func (c *ConsensusRecord) Value(field string) (any, bool) {
	d, ok := c.Fields[field]
	if !ok {
		return nil, false
	}
	return d.Value, true
}

// Result returns the audit entry for the named provider, if it was consulted.
func (c *ConsensusRecord) Result(provider string) (EnrichmentResult, bool) {
	for _, r := range c.Results {
		if r.Provider == provider {
			return r, true
		}
	}
	return EnrichmentResult{}, false
}
