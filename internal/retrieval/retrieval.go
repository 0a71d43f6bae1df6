// Package retrieval implements hybrid semantic search over per-tenant
// vector namespaces: passage chunking, dense cosine scoring, BM25 sparse
// scoring, min-max fusion, query expansion and adaptive thresholding.
package retrieval

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/vectorstore"
)

// Sentinel errors.
var (
	ErrEmptyQuery     = eris.New("retrieval: empty query")
	ErrTenantRequired = eris.New("retrieval: tenant required")
	ErrInvalidOptions = eris.New("retrieval: invalid options")
)

// Expansion modes.
const (
	ExpansionNone       = ""
	ExpansionHyDE       = "hyde"
	ExpansionMultiQuery = "multi_query"
)

// Document is one unit of indexed text. Long text is split into passages
// on upsert; search results are reported per document.
type Document struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Collection string         `json:"collection,omitempty"`
}

// SearchResult is one ranked document. Score is in [0, 1].
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Passage is the best-scoring passage of the document.
	Passage string `json:"passage,omitempty"`
}

// DefaultAlpha is the dense weight of hybrid fusion when none is given.
const DefaultAlpha = 0.7

// Options tunes one search.
type Options struct {
	Limit         int     `json:"limit"`
	MinSimilarity float64 `json:"min_similarity"`
	Hybrid        bool    `json:"hybrid"`
	// Alpha is the dense weight in hybrid fusion. Nil means DefaultAlpha;
	// an explicit zero ranks by BM25 alone.
	Alpha             *float64 `json:"alpha,omitempty"`
	Expansion         string   `json:"expansion,omitempty"`
	AdaptiveThreshold bool     `json:"adaptive_threshold"`
	Collection        string   `json:"collection,omitempty"`
}

// WithAlpha returns a pointer suitable for Options.Alpha.
func WithAlpha(a float64) *float64 { return &a }

// DefaultOptions returns hybrid search with alpha 0.7 and no expansion.
func DefaultOptions() Options {
	return Options{
		Limit:      10,
		Hybrid:     true,
		Alpha:      WithAlpha(DefaultAlpha),
		Collection: vectorstore.CollectionCatalog,
	}
}

func (o Options) alpha() float64 {
	if o.Alpha == nil {
		return DefaultAlpha
	}
	return *o.Alpha
}

func (o Options) withDefaults(defaultLimit int) (Options, error) {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if a := o.alpha(); a < 0 || a > 1 {
		return o, eris.Wrapf(ErrInvalidOptions, "alpha %.3f out of range", a)
	}
	o.Alpha = WithAlpha(o.alpha())
	if o.Collection == "" {
		o.Collection = vectorstore.CollectionCatalog
	}
	o.Expansion = strings.ToLower(strings.TrimSpace(o.Expansion))
	switch o.Expansion {
	case ExpansionNone, ExpansionHyDE, ExpansionMultiQuery:
	default:
		return o, eris.Wrapf(ErrInvalidOptions, "unknown expansion %q", o.Expansion)
	}
	return o, nil
}

// mode labels a search for metrics.
func (o Options) mode() string {
	m := "dense"
	if o.Hybrid {
		m = "hybrid"
	}
	if o.Expansion != ExpansionNone {
		m += "+" + o.Expansion
	}
	return m
}
