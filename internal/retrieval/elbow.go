package retrieval

// Adaptive threshold bounds.
const (
	ElbowFloor   = 0.5
	ElbowCeiling = 0.9
)

const scoreEpsilon = 1e-9

// ElbowCutoff finds the largest gap between consecutive scores (sorted
// descending) and returns the value just below it, clamped to
// [ElbowFloor, ElbowCeiling]. Scores strictly above the cutoff survive.
// ok is false when fewer than two scores exist or all scores are equal.
func ElbowCutoff(sorted []float64) (cutoff float64, ok bool) {
	if len(sorted) < 2 {
		return 0, false
	}
	gap, at := 0.0, -1
	for i := 0; i+1 < len(sorted); i++ {
		if g := sorted[i] - sorted[i+1]; g > gap+scoreEpsilon {
			gap, at = g, i
		}
	}
	if at < 0 || gap <= scoreEpsilon {
		return 0, false
	}
	cutoff = sorted[at+1]
	if cutoff < ElbowFloor {
		cutoff = ElbowFloor
	}
	if cutoff > ElbowCeiling {
		cutoff = ElbowCeiling
	}
	return cutoff, true
}

// applyElbow drops results at or below the elbow cutoff. results must be
// sorted by descending score.
func applyElbow(results []SearchResult) []SearchResult {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	cutoff, ok := ElbowCutoff(scores)
	if !ok {
		return results
	}
	for i, r := range results {
		if r.Score <= cutoff {
			return results[:i]
		}
	}
	return results
}
