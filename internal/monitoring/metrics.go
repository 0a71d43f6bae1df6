package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments used by the enrichment core.
// A nil *Metrics is a valid no-op.
type Metrics struct {
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	FusionFields     *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	ResultsDropped   *prometheus.CounterVec
}

// NewMetrics registers all instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrich_provider_calls_total",
				Help: "Provider invocations by outcome status",
			},
			[]string{"provider", "status"},
		),
		ProviderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enrich_provider_call_duration_seconds",
				Help:    "Duration of live provider calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrich_cache_lookups_total",
				Help: "Provider cache lookups by result (hit, miss, error)",
			},
			[]string{"provider", "result"},
		),
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrich_rate_limited_total",
				Help: "Provider calls skipped because the rate window was exhausted",
			},
			[]string{"provider"},
		),
		FusionFields: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrich_fusion_fields_total",
				Help: "Consensus fields by winning source",
			},
			[]string{"source"},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_search_duration_seconds",
				Help:    "Duration of retrieval searches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ResultsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_results_dropped_total",
				Help: "Search results dropped by filter reason",
			},
			[]string{"reason"},
		),
	}
}

// ObserveProvider records one provider outcome.
func (m *Metrics) ObserveProvider(provider, status string, d time.Duration, live bool) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, status).Inc()
	if live {
		m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(provider, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(provider, result).Inc()
}

// ObserveRateLimited records a rate-limit denial.
func (m *Metrics) ObserveRateLimited(provider string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(provider).Inc()
}

// ObserveFusion records a consensus field won by source.
func (m *Metrics) ObserveFusion(source string) {
	if m == nil {
		return
	}
	m.FusionFields.WithLabelValues(source).Inc()
}

// ObserveSearch records a search duration for the given mode.
func (m *Metrics) ObserveSearch(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveDropped records n results dropped for reason.
func (m *Metrics) ObserveDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ResultsDropped.WithLabelValues(reason).Add(float64(n))
}
