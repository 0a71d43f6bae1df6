package model

import "time"

// ResultStatus describes how a provider call ended.
type ResultStatus string

// Result statuses. Everything other than StatusOK carries zero confidence.
const (
	StatusOK          ResultStatus = "ok"
	StatusNoMatch     ResultStatus = "no_match"
	StatusRateLimited ResultStatus = "rate_limited"
	StatusCircuitOpen ResultStatus = "circuit_open"
	StatusFailed      ResultStatus = "failed"
	StatusTimeout     ResultStatus = "timeout"
	StatusAbandoned   ResultStatus = "abandoned"
)

// Skipped reports whether the provider was never actually consulted.
func (s ResultStatus) Skipped() bool {
	return s == StatusRateLimited || s == StatusCircuitOpen || s == StatusAbandoned
}

// EnrichmentResult is one provider's output for one call.
type EnrichmentResult struct {
	Provider   string         `json:"provider"`
	Status     ResultStatus   `json:"status"`
	Confidence float64        `json:"confidence"`
	Fields     []string       `json:"fields"`
	Reasoning  []string       `json:"reasoning,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
	Duration   time.Duration  `json:"duration_ns,omitempty"`
}

// NewResult returns an empty result for the named provider.
func NewResult(provider string) *EnrichmentResult {
	return &EnrichmentResult{
		Provider: provider,
		Status:   StatusNoMatch,
		Values:   make(map[string]any),
	}
}

// Set proposes a value for a field and records the field as touched.
func (r *EnrichmentResult) Set(field string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, exists := r.Values[field]; !exists {
		r.Fields = append(r.Fields, field)
	}
	r.Values[field] = value
}

// Reason appends a line to the reasoning trail.
func (r *EnrichmentResult) Reason(line string) {
	r.Reasoning = append(r.Reasoning, line)
}

// Matched marks the result as a successful match with the given confidence.
func (r *EnrichmentResult) Matched(confidence float64) {
	r.Status = StatusOK
	r.Confidence = clamp01(confidence)
}

// ZeroResult builds a zero-confidence result carrying a human-readable reason.
func ZeroResult(provider string, status ResultStatus, reason string) *EnrichmentResult {
	r := NewResult(provider)
	r.Status = status
	if reason != "" {
		r.Reason(reason)
	}
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
