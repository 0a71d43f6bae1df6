package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Expander generates alternative query text for expanded searches.
type Expander interface {
	// Hypothetical writes a plausible passage that would answer query.
	Hypothetical(ctx context.Context, query string) (string, error)
	// Paraphrases returns up to n rewordings of query.
	Paraphrases(ctx context.Context, query string, n int) ([]string, error)
}

// maxParaphrases bounds multi-query expansion.
const maxParaphrases = 3

// variant is one query run. dense is embedded, sparse is tokenized for
// BM25.
type variant struct {
	dense  string
	sparse string
}

// variants returns the query runs for opts. Expansion failures fall back
// to the raw query.
func (e *Engine) variants(ctx context.Context, query string, opts Options) []variant {
	plain := []variant{{dense: query, sparse: query}}
	if opts.Expansion == ExpansionNone {
		return plain
	}
	log := zap.L().With(zap.String("expansion", opts.Expansion))
	if e.expander == nil {
		log.Warn("retrieval: expansion requested without an expander")
		return plain
	}

	switch opts.Expansion {
	case ExpansionHyDE:
		hyp, err := e.expander.Hypothetical(ctx, query)
		if err != nil || strings.TrimSpace(hyp) == "" {
			log.Warn("retrieval: hypothetical passage unavailable, using raw query", zap.Error(err))
			return plain
		}
		return []variant{{dense: hyp, sparse: query}}
	case ExpansionMultiQuery:
		paras, err := e.expander.Paraphrases(ctx, query, maxParaphrases)
		if err != nil {
			log.Warn("retrieval: paraphrases unavailable, using raw query", zap.Error(err))
			return plain
		}
		fold := cases.Fold()
		seen := map[string]bool{fold.String(query): true}
		out := plain
		for _, p := range paras {
			p = strings.TrimSpace(p)
			key := fold.String(p)
			if p == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, variant{dense: p, sparse: p})
			if len(out) > maxParaphrases {
				break
			}
		}
		return out
	}
	return plain
}
