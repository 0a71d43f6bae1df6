package llm

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/retrieval"
	"github.com/sells-group/catalog-enricher/pkg/anthropic"
)

const hypotheticalPrompt = `You write short catalog passages. Given a question or search phrase about products and services a company buys or sells, write one plausible passage (2-4 sentences) that a catalog entry answering it would contain. Use concrete product, vendor, and category vocabulary. Respond with the passage only.`

const paraphrasePrompt = `You rewrite search queries over a product and service catalog. Produce alternative phrasings that keep the meaning but vary vocabulary (synonyms, vendor names, category terms).

Respond with ONLY a JSON array of strings, no other text:
["first rewrite", "second rewrite"]`

// Hypothetical writes a passage that would answer query.
func (s *Service) Hypothetical(ctx context.Context, query string) (string, error) {
	return s.ask(ctx, "hypothetical passage", hypotheticalPrompt, query, 0.3)
}

// Paraphrases returns up to n rewordings of query.
func (s *Service) Paraphrases(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	user := "Query: " + query + "\nNumber of rewrites: " + strconv.Itoa(n)
	text, err := s.ask(ctx, "paraphrases", paraphrasePrompt, user, 0.7)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := anthropic.DecodeJSON(text, &out); err != nil {
		return nil, eris.Wrap(err, "llm: paraphrases")
	}
	clean := out[:0]
	for _, p := range out {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) > n {
		clean = clean[:n]
	}
	return clean, nil
}

var _ retrieval.Expander = (*Service)(nil)
