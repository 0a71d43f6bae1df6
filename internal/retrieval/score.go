package retrieval

import "math"

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MinMax rescales scores to [0, 1]. When every score is equal the result
// is 1 for a positive value and 0 otherwise.
func MinMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi-lo <= scoreEpsilon {
		if hi > 0 {
			for i := range out {
				out[i] = 1
			}
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// Fuse combines normalized dense and sparse scores as
// alpha*dense + (1-alpha)*sparse.
func Fuse(dense, sparse []float64, alpha float64) []float64 {
	d, s := MinMax(dense), MinMax(sparse)
	out := make([]float64, len(d))
	for i := range d {
		out[i] = alpha*d[i] + (1-alpha)*s[i]
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
