// Package taxonomy is a static code-table provider. It matches the item's
// name and description against table keywords with an Aho-Corasick automaton
// and proposes the best entry's label and code.
package taxonomy

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
)

// Name is the default provider name.
const Name = "taxonomy"

// Provider proposes category, taxonomy_code and taxonomy_system.
type Provider struct {
	desc provider.Descriptor
	path string

	mu       sync.RWMutex
	table    *Table
	matcher  *ahocorasick.Matcher
	keywords []string
	owners   map[string][]keywordRef
}

type keywordRef struct {
	entry int
	index int
}

// Match is a scored table entry.
type Match struct {
	Entry      Entry
	Matched    []string
	Coverage   float64
	Confidence float64
}

// New returns a provider that loads its table from path on Initialize.
func New(desc provider.Descriptor, path string) *Provider {
	if desc.Name == "" {
		desc.Name = Name
	}
	return &Provider{desc: desc, path: path}
}

// NewWithTable returns a provider over an in-memory table.
func NewWithTable(desc provider.Descriptor, t *Table) *Provider {
	p := New(desc, "")
	t.normalize()
	p.build(t)
	return p
}

func (p *Provider) Descriptor() provider.Descriptor { return p.desc }

// IsEnabled reports whether a table is configured.
func (p *Provider) IsEnabled() bool {
	if p.path != "" {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table != nil
}

// Initialize loads the table once. Later calls are no-ops.
func (p *Provider) Initialize(context.Context) error {
	p.mu.RLock()
	loaded := p.table != nil
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	if p.path == "" {
		return eris.New("taxonomy: no table configured")
	}

	t, err := LoadTable(p.path)
	if err != nil {
		return err
	}
	p.build(t)
	zap.L().Info("taxonomy: table loaded",
		zap.String("provider", p.desc.Name),
		zap.String("path", p.path),
		zap.Int("entries", len(t.Entries)),
	)
	return nil
}

func (p *Provider) build(t *Table) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table != nil {
		return
	}

	owners := make(map[string][]keywordRef)
	var keywords []string
	for ei, e := range t.Entries {
		for ki, kw := range e.Keywords {
			norm := normalize(kw)
			if norm == "  " {
				continue
			}
			if _, seen := owners[norm]; !seen {
				keywords = append(keywords, norm)
			}
			owners[norm] = append(owners[norm], keywordRef{entry: ei, index: ki})
		}
	}

	p.table = t
	p.keywords = keywords
	p.owners = owners
	if len(keywords) > 0 {
		p.matcher = ahocorasick.NewStringMatcher(keywords)
	}
}

// Enrich matches item against the table.
func (p *Provider) Enrich(ctx context.Context, item model.ExtractedItem, _ model.EnrichmentContext) (*model.EnrichmentResult, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	res := model.NewResult(p.desc.Name)
	best, ok := p.Best(item)
	if !ok {
		res.Reason("no taxonomy keyword matched")
		return res, nil
	}

	res.Set(model.FieldCategory, best.Entry.Label)
	res.Set(model.FieldTaxonomyCode, best.Entry.Code)
	if best.Entry.System != "" {
		res.Set(model.FieldTaxonomySystem, best.Entry.System)
	}
	res.Matched(best.Confidence)
	res.Reason(fmt.Sprintf("matched %s %s on %q (coverage %.2f)",
		best.Entry.System, best.Entry.Code, strings.Join(best.Matched, ", "), best.Coverage))
	return res, nil
}

// Best returns the highest-confidence entry. Ties keep table order.
func (p *Provider) Best(item model.ExtractedItem) (Match, bool) {
	matches := p.Matches(item)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// Matches scores every entry with at least one keyword hit, highest
// confidence first. An entry earns half its base confidence for any hit and
// the rest in proportion to keyword coverage.
func (p *Provider) Matches(item model.ExtractedItem) []Match {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.matcher == nil {
		return nil
	}

	type accum struct {
		hit     map[int]bool
		matched []string
	}
	acc := make(map[int]*accum)
	var order []int

	for _, idx := range p.matcher.MatchThreadSafe([]byte(normalize(item.Text()))) {
		if idx >= len(p.keywords) {
			continue
		}
		kw := p.keywords[idx]
		for _, ref := range p.owners[kw] {
			e := p.table.Entries[ref.entry]
			if e.Type != "" && item.Type.Valid() && e.Type != item.Type {
				continue
			}
			a, ok := acc[ref.entry]
			if !ok {
				a = &accum{hit: make(map[int]bool)}
				acc[ref.entry] = a
				order = append(order, ref.entry)
			}
			if !a.hit[ref.index] {
				a.hit[ref.index] = true
				a.matched = append(a.matched, strings.TrimSpace(kw))
			}
		}
	}

	slices.Sort(order)
	out := make([]Match, 0, len(acc))
	for _, ei := range order {
		e := p.table.Entries[ei]
		a := acc[ei]
		coverage := float64(len(a.hit)) / float64(len(e.Keywords))
		out = append(out, Match{
			Entry:      e,
			Matched:    a.matched,
			Coverage:   coverage,
			Confidence: e.Confidence * (0.5 + 0.5*coverage),
		})
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}

// normalize folds text into space-separated tokens padded on both sides, so
// keywords only match whole words.
func normalize(s string) string {
	return " " + strings.Join(retrieval.Tokenize(s), " ") + " "
}

var _ provider.Provider = (*Provider)(nil)
