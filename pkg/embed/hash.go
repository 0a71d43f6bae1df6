package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is a deterministic local embedder. Each word and each character
// trigram of a word is hashed into one of Dim buckets, and the bucket counts
// are L2-normalized, so texts sharing vocabulary have high cosine
// similarity. It needs no network and is used when no hosted service is
// configured.
type Hash struct {
	Dim int
}

// NewHash creates a hashing embedder with dim dimensions.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 256
	}
	return &Hash{Dim: dim}
}

func (h *Hash) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hash) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func (h *Hash) vector(text string) []float32 {
	vec := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		vec[h.bucket(w)] += 2
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			vec[h.bucket(string(padded[i:i+3]))]++
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}

func (h *Hash) bucket(s string) int {
	f := fnv.New32a()
	f.Write([]byte(s)) //nolint:errcheck
	return int(f.Sum32() % uint32(h.Dim))
}

var (
	_ Embedder = (*OpenAI)(nil)
	_ Embedder = (*Hash)(nil)
)
