package retrieval

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/vectorstore"
	"github.com/sells-group/catalog-enricher/pkg/embed"
)

// Engine indexes and searches documents in per-tenant namespaces. It is
// safe for concurrent use.
type Engine struct {
	store        vectorstore.Store
	embedder     embed.Embedder
	expander     Expander
	chunker      Chunker
	k1, b        float64
	defaultLimit int
	workers      int
	batchSize    int
	metrics      *monitoring.Metrics
	pool         *ants.Pool
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithExpander enables HyDE and multi-query expansion.
func WithExpander(x Expander) Option { return func(e *Engine) { e.expander = x } }

// WithChunker overrides the passage chunker.
func WithChunker(c Chunker) Option { return func(e *Engine) { e.chunker = c } }

// WithBM25 sets the BM25 parameters.
func WithBM25(k1, b float64) Option {
	return func(e *Engine) { e.k1, e.b = k1, b }
}

// WithMetrics records search latency and dropped results.
func WithMetrics(m *monitoring.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithWorkers bounds concurrent embedding batches during upsert.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithBatchSize sets how many passages go into one embedding request.
func WithBatchSize(n int) Option { return func(e *Engine) { e.batchSize = n } }

// WithDefaultLimit sets the result limit used when a search asks for none.
func WithDefaultLimit(n int) Option { return func(e *Engine) { e.defaultLimit = n } }

// ConfigOptions maps retrieval configuration to engine options.
func ConfigOptions(rc config.RetrievalConfig, batchSize int) []Option {
	return []Option{
		WithChunker(NewChunker(rc.ChunkSize, rc.ChunkOverlap, rc.ChunkMin)),
		WithBM25(rc.K1, rc.B),
		WithWorkers(rc.IndexWorkers),
		WithDefaultLimit(rc.DefaultLimit),
		WithBatchSize(batchSize),
	}
}

// New creates an engine over store. The caller owns store and closes it
// after the engine.
func New(store vectorstore.Store, embedder embed.Embedder, opts ...Option) (*Engine, error) {
	if store == nil || embedder == nil {
		return nil, eris.New("retrieval: store and embedder are required")
	}
	e := &Engine{
		store:        store,
		embedder:     embedder,
		chunker:      NewChunker(DefaultChunkSize, DefaultChunkOverlap, DefaultChunkMin),
		k1:           DefaultK1,
		b:            DefaultB,
		defaultLimit: 10,
		workers:      4,
		batchSize:    32,
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	if e.batchSize <= 0 {
		e.batchSize = 32
	}
	if e.defaultLimit <= 0 {
		e.defaultLimit = 10
	}
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: create embedding pool")
	}
	e.pool = pool
	return e, nil
}

// Close releases the embedding pool.
func (e *Engine) Close() {
	e.pool.Release()
}

// Search ranks the documents of one tenant collection against query.
// Results are ordered by descending score, ties by document insertion
// order.
func (e *Engine) Search(ctx context.Context, tenant, query string, opts Options) ([]SearchResult, error) {
	start := e.now()
	tenant = strings.TrimSpace(tenant)
	query = strings.TrimSpace(query)
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}
	opts, err := opts.withDefaults(e.defaultLimit)
	if err != nil {
		return nil, err
	}
	ns := vectorstore.Namespace{Tenant: tenant, Collection: opts.Collection}
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	recs, err := e.store.List(ctx, ns)
	if err != nil {
		return nil, eris.Wrapf(err, "retrieval: list %s", ns)
	}
	defer func() { e.metrics.ObserveSearch(opts.mode(), time.Since(start)) }()
	if len(recs) == 0 {
		return []SearchResult{}, nil
	}

	c := newCorpus(recs, opts.Hybrid, e.k1, e.b)
	runs := e.variants(ctx, query, opts)
	perRun := make([][]float64, len(runs))
	var best []int
	for i, v := range runs {
		qv, err := e.embedder.EmbedQuery(ctx, v.dense)
		if err != nil {
			return nil, eris.Wrap(err, "retrieval: embed query")
		}
		scores, passages := c.score(qv, v.sparse, opts)
		perRun[i] = scores
		if i == 0 {
			best = passages
		}
	}

	scores := perRun[0]
	if len(perRun) > 1 {
		scores = averageRetrieved(perRun, max(opts.Limit*4, 20))
	}

	results := make([]SearchResult, 0, len(c.docs))
	order := make(map[string]int, len(c.docs))
	belowMin := 0
	for i, d := range c.docs {
		s := scores[i]
		if s <= 0 {
			continue
		}
		if s < opts.MinSimilarity {
			belowMin++
			continue
		}
		order[d.id] = i
		results = append(results, SearchResult{
			ID:       d.id,
			Score:    s,
			Metadata: maps.Clone(d.metadata),
			Passage:  d.passages[best[i]],
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return order[a.ID] - order[b.ID]
	})
	e.metrics.ObserveDropped("min_similarity", belowMin)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	if opts.AdaptiveThreshold {
		kept := applyElbow(results)
		e.metrics.ObserveDropped("adaptive_threshold", len(results)-len(kept))
		results = kept
	}

	zap.L().Debug("retrieval: search",
		zap.String("tenant", tenant),
		zap.String("collection", opts.Collection),
		zap.String("mode", opts.mode()),
		zap.Int("candidates", len(c.docs)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// averageRetrieved merges per-run document scores, averaging each document
// over the runs that retrieved it. A run retrieves a document when it
// ranks in that run's top pool with a positive score.
func averageRetrieved(perRun [][]float64, pool int) []float64 {
	n := len(perRun[0])
	sum := make([]float64, n)
	hits := make([]int, n)
	for _, scores := range perRun {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			switch {
			case scores[a] > scores[b]:
				return -1
			case scores[a] < scores[b]:
				return 1
			}
			return 0
		})
		for rank, i := range idx {
			if rank >= pool || scores[i] <= 0 {
				break
			}
			sum[i] += scores[i]
			hits[i]++
		}
	}
	out := make([]float64, n)
	for i := range out {
		if hits[i] > 0 {
			out[i] = sum[i] / float64(hits[i])
		}
	}
	return out
}

type passageRef struct {
	doc, chunk int
}

// UpsertDocuments chunks, embeds and stores docs for tenant, replacing any
// previous passages of the same document IDs. It returns the number of
// passages written.
func (e *Engine) UpsertDocuments(ctx context.Context, tenant string, docs []Document) (int, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return 0, ErrTenantRequired
	}
	if len(docs) == 0 {
		return 0, nil
	}

	docs = slices.Clone(docs)
	chunks := make([][]string, len(docs))
	var refs []passageRef
	var texts []string
	for i := range docs {
		d := &docs[i]
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return 0, eris.Errorf("retrieval: document %d has no id", i)
		}
		if d.Collection == "" {
			d.Collection = vectorstore.CollectionCatalog
		}
		if err := (vectorstore.Namespace{Tenant: tenant, Collection: d.Collection}).Validate(); err != nil {
			return 0, err
		}
		chunks[i] = e.chunker.Split(d.Text)
		if len(chunks[i]) == 0 {
			return 0, eris.Errorf("retrieval: document %s has no text", d.ID)
		}
		for j, p := range chunks[i] {
			refs = append(refs, passageRef{doc: i, chunk: j})
			texts = append(texts, p)
		}
	}

	vectors, err := e.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	now := e.now().UTC()
	recs := make([][]vectorstore.Record, len(docs))
	for k, ref := range refs {
		d := docs[ref.doc]
		recs[ref.doc] = append(recs[ref.doc], vectorstore.Record{
			ID:        fmt.Sprintf("%s#%d", d.ID, ref.chunk),
			DocID:     d.ID,
			Chunk:     ref.chunk,
			Text:      texts[k],
			Vector:    vectors[k],
			Metadata:  maps.Clone(d.Metadata),
			UpdatedAt: now,
		})
	}
	for i, d := range docs {
		ns := vectorstore.Namespace{Tenant: tenant, Collection: d.Collection}
		if err := e.store.ReplaceDocument(ctx, ns, d.ID, recs[i]); err != nil {
			return 0, eris.Wrapf(err, "retrieval: store %s in %s", d.ID, ns)
		}
	}

	zap.L().Info("retrieval: documents upserted",
		zap.String("tenant", tenant),
		zap.Int("documents", len(docs)),
		zap.Int("passages", len(texts)),
	)
	return len(texts), nil
}

// embedAll embeds texts in batches on the worker pool, preserving order.
func (e *Engine) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for lo := 0; lo < len(texts); lo += e.batchSize {
		hi := min(lo+e.batchSize, len(texts))
		if err := ctx.Err(); err != nil {
			fail(eris.Wrap(err, "retrieval: embed"))
			break
		}
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			vecs, err := e.embedder.EmbedTexts(ctx, texts[lo:hi])
			if err != nil {
				fail(eris.Wrapf(err, "retrieval: embed passages %d-%d", lo, hi))
				return
			}
			if len(vecs) != hi-lo {
				fail(eris.Errorf("retrieval: embedder returned %d vectors for %d passages", len(vecs), hi-lo))
				return
			}
			copy(out[lo:hi], vecs)
		})
		if err != nil {
			wg.Done()
			fail(eris.Wrap(err, "retrieval: submit embedding batch"))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// DeleteDocument removes a document from a tenant collection.
func (e *Engine) DeleteDocument(ctx context.Context, tenant, collection, docID string) error {
	ns := vectorstore.Namespace{Tenant: strings.TrimSpace(tenant), Collection: collection}
	if ns.Collection == "" {
		ns.Collection = vectorstore.CollectionCatalog
	}
	if err := ns.Validate(); err != nil {
		return err
	}
	return eris.Wrapf(e.store.DeleteDocument(ctx, ns, docID), "retrieval: delete %s", docID)
}

// Count returns the number of indexed passages in a tenant collection.
func (e *Engine) Count(ctx context.Context, tenant, collection string) (int, error) {
	ns := vectorstore.Namespace{Tenant: strings.TrimSpace(tenant), Collection: collection}
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	n, err := e.store.Count(ctx, ns)
	return n, eris.Wrapf(err, "retrieval: count %s", ns)
}
