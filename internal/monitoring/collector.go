package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/store"
)

// MetricsSnapshot holds a point-in-time view of enrichment health over a
// lookback window, computed from the consensus audit trail.
type MetricsSnapshot struct {
	ConsensusTotal      int     `json:"consensus_total"`
	ConsensusIncomplete int     `json:"consensus_incomplete"`
	IncompleteRate      float64 `json:"incomplete_rate"`
	AvgFields           float64 `json:"avg_fields"`

	ProviderCalls    int            `json:"provider_calls"`
	ProviderFailures int            `json:"provider_failures"`
	ProviderSkipped  int            `json:"provider_skipped"`
	ProviderFailRate float64        `json:"provider_fail_rate"`
	CacheHits        int            `json:"cache_hits"`
	FailuresBySource map[string]int `json:"failures_by_source,omitempty"`
	FieldsBySource   map[string]int `json:"fields_by_source,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ConsensusLister abstracts the store method needed by the collector.
type ConsensusLister interface {
	ListConsensus(ctx context.Context, filter store.ConsensusFilter) ([]model.ConsensusRecord, error)
}

// Collector gathers enrichment metrics from the audit store.
type Collector struct {
	store ConsensusLister
}

// NewCollector creates a new metrics collector.
func NewCollector(st ConsensusLister) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		FailuresBySource: make(map[string]int),
		FieldsBySource:   make(map[string]int),
		LookbackHours:    lookbackHours,
		CollectedAt:      time.Now().UTC(),
	}

	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)
	records, err := c.store.ListConsensus(ctx, store.ConsensusFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list consensus")
	}

	var totalFields int
	for _, rec := range records {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		snap.ConsensusTotal++
		if rec.Incomplete {
			snap.ConsensusIncomplete++
		}
		totalFields += len(rec.Fields)
		for _, d := range rec.Fields {
			snap.FieldsBySource[d.Source]++
		}
		for _, r := range rec.Results {
			if r.Status.Skipped() {
				snap.ProviderSkipped++
				continue
			}
			snap.ProviderCalls++
			if r.Cached {
				snap.CacheHits++
			}
			if r.Status == model.StatusFailed || r.Status == model.StatusTimeout {
				snap.ProviderFailures++
				snap.FailuresBySource[r.Provider]++
			}
		}
	}

	if snap.ConsensusTotal > 0 {
		snap.IncompleteRate = float64(snap.ConsensusIncomplete) / float64(snap.ConsensusTotal)
		snap.AvgFields = float64(totalFields) / float64(snap.ConsensusTotal)
	}
	if snap.ProviderCalls > 0 {
		snap.ProviderFailRate = float64(snap.ProviderFailures) / float64(snap.ProviderCalls)
	}
	return snap, nil
}
