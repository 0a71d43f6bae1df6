package retrieval

import "github.com/sells-group/catalog-enricher/internal/vectorstore"

type corpusDoc struct {
	id       string
	metadata map[string]any
	passages []string
	first    int // index of the first passage in corpus.vectors
}

// corpus is one namespace snapshot grouped by document in insertion order.
type corpus struct {
	docs    []corpusDoc
	vectors [][]float32
	owner   []int // passage index -> doc index
	bm25    *BM25
}

func newCorpus(recs []vectorstore.Record, sparse bool, k1, b float64) *corpus {
	c := &corpus{}
	var texts []string
	pos := map[string]int{}
	for _, r := range recs {
		i, ok := pos[r.DocID]
		if !ok {
			i = len(c.docs)
			pos[r.DocID] = i
			c.docs = append(c.docs, corpusDoc{id: r.DocID, metadata: r.Metadata, first: len(c.vectors)})
		}
		c.docs[i].passages = append(c.docs[i].passages, r.Text)
		c.vectors = append(c.vectors, r.Vector)
		c.owner = append(c.owner, i)
		texts = append(texts, r.Text)
	}
	if sparse {
		c.bm25 = NewBM25(texts, k1, b)
	}
	return c
}

// score returns one score per document, the maximum over its passages,
// and the chunk index of that passage.
func (c *corpus) score(qv []float32, sparseQuery string, opts Options) ([]float64, []int) {
	dense := make([]float64, len(c.vectors))
	for i, v := range c.vectors {
		dense[i] = Cosine(qv, v)
	}

	var passage []float64
	if opts.Hybrid && c.bm25 != nil {
		passage = Fuse(dense, c.bm25.Scores(sparseQuery), opts.alpha())
	} else {
		passage = make([]float64, len(dense))
		for i, d := range dense {
			passage[i] = clamp01(d)
		}
	}

	out := make([]float64, len(c.docs))
	best := make([]int, len(c.docs))
	seen := make([]bool, len(c.docs))
	for p, s := range passage {
		d := c.owner[p]
		if !seen[d] || s > out[d] {
			out[d] = s
			best[d] = p - c.docs[d].first
			seen[d] = true
		}
	}
	return out, best
}
