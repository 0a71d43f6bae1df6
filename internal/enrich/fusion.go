package enrich

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// weightEpsilon treats effective weights closer than this as equal, so
// 0.8*0.9 and 0.9*0.8 tie despite floating point rounding.
const weightEpsilon = 1e-9

type candidate struct {
	source     string
	value      any
	weight     float64
	confidence float64
	rank       int
	order      int
}

// beats reports whether a wins over b: strictly higher effective weight,
// then higher registry priority (lower rank), then earlier invocation.
func (a candidate) beats(b candidate) bool {
	if d := a.weight - b.weight; math.Abs(d) > weightEpsilon {
		return d > 0
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.order < b.order
}

type fusionInput struct {
	results []model.EnrichmentResult
	weights map[string]float64
	ranks   map[string]int
	item    model.ExtractedItem
}

// fuse resolves every field proposed by any result, or supplied by the
// caller, to exactly one value.
func (o *Orchestrator) fuse(in fusionInput) map[string]model.FieldDecision {
	byField := make(map[string][]candidate)
	for order, r := range in.results {
		if r.Status != model.StatusOK {
			continue
		}
		rank, ok := in.ranks[r.Provider]
		if !ok {
			rank = len(in.ranks)
		}
		eff := r.Confidence * in.weights[r.Provider]
		for _, field := range r.Fields {
			val, ok := r.Values[field]
			if !ok || val == nil {
				continue
			}
			byField[field] = append(byField[field], candidate{
				source:     r.Provider,
				value:      val,
				weight:     eff,
				confidence: r.Confidence,
				rank:       rank,
				order:      order,
			})
		}
	}

	supplied := in.item.SuppliedFields()
	fields := make(map[string]model.FieldDecision)

	keys := make([]string, 0, len(byField)+len(supplied))
	for f := range byField {
		keys = append(keys, f)
	}
	for f := range supplied {
		if _, ok := byField[f]; !ok {
			keys = append(keys, f)
		}
	}
	slices.Sort(keys)

	for _, field := range keys {
		cands := byField[field]
		var winner *candidate
		for i := range cands {
			c := cands[i]
			if c.weight <= o.cfg.MinEffectiveWeight {
				continue
			}
			if winner == nil || c.beats(*winner) {
				winner = &cands[i]
			}
		}

		if sf, ok := supplied[field]; ok {
			conf := sf.EffectiveConfidence()
			caller := candidate{
				source:     model.SourceCaller,
				value:      sf.Value,
				weight:     conf,
				confidence: conf,
				rank:       len(in.ranks) + 1,
				order:      len(in.results),
			}
			switch {
			case conf >= o.cfg.SuppliedConfidence:
				if winner == nil || winner.weight <= o.cfg.OverrideThreshold {
					fields[field] = decision(caller, len(cands)+1, true)
					o.logDecision(field, caller, len(cands)+1, true)
					continue
				}
			case winner == nil || caller.beats(*winner):
				if conf > o.cfg.MinEffectiveWeight {
					fields[field] = decision(caller, len(cands)+1, true)
					o.logDecision(field, caller, len(cands)+1, true)
					continue
				}
			}
		}

		if winner == nil {
			continue
		}
		fields[field] = decision(*winner, len(cands), false)
		o.logDecision(field, *winner, len(cands), false)
	}
	return fields
}

func decision(c candidate, candidates int, kept bool) model.FieldDecision {
	return model.FieldDecision{
		Value:           c.value,
		Source:          c.source,
		EffectiveWeight: c.weight,
		Confidence:      c.confidence,
		Candidates:      candidates,
		KeptSupplied:    kept,
	}
}

func (o *Orchestrator) logDecision(field string, c candidate, candidates int, kept bool) {
	o.metrics.ObserveFusion(c.source)
	zap.L().Debug("enrich: field resolved",
		zap.String("field", field),
		zap.String("winner", c.source),
		zap.Float64("effective_weight", c.weight),
		zap.Int("candidates", candidates),
		zap.Bool("kept_supplied", kept),
	)
}
