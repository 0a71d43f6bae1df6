package retrieval

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// BM25 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Tokenize folds case and splits text into runs of letters and digits.
func Tokenize(text string) []string {
	folded := cases.Fold().String(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// BM25 scores a fixed corpus of passages.
type BM25 struct {
	k1, b  float64
	tf     []map[string]int
	length []int
	df     map[string]int
	avgdl  float64
}

// NewBM25 indexes passages. Non-positive k1 or negative b fall back to the
// defaults.
func NewBM25(passages []string, k1, b float64) *BM25 {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	idx := &BM25{
		k1:     k1,
		b:      b,
		tf:     make([]map[string]int, len(passages)),
		length: make([]int, len(passages)),
		df:     make(map[string]int),
	}
	total := 0
	for i, p := range passages {
		toks := Tokenize(p)
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		idx.tf[i] = tf
		idx.length[i] = len(toks)
		total += len(toks)
	}
	if len(passages) > 0 {
		idx.avgdl = float64(total) / float64(len(passages))
	}
	return idx
}

// IDF is the non-negative form ln((N - n + 0.5) / (n + 0.5) + 1).
func (idx *BM25) IDF(term string) float64 {
	n := float64(idx.df[term])
	total := float64(len(idx.tf))
	return math.Log((total-n+0.5)/(n+0.5) + 1)
}

// Scores returns the BM25 score of every passage for query. Repeated query
// terms count once.
func (idx *BM25) Scores(query string) []float64 {
	out := make([]float64, len(idx.tf))
	if idx.avgdl == 0 {
		return out
	}
	terms := uniqueTerms(Tokenize(query))
	for _, q := range terms {
		if idx.df[q] == 0 {
			continue
		}
		idf := idx.IDF(q)
		for i, tf := range idx.tf {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			norm := idx.k1 * (1 - idx.b + idx.b*float64(idx.length[i])/idx.avgdl)
			out[i] += idf * f * (idx.k1 + 1) / (f + norm)
		}
	}
	return out
}

func uniqueTerms(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := toks[:0:0]
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
