package vectorstore

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memDoc struct {
	seq  uint64
	recs []Record
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	docs map[Namespace]map[string]*memDoc
	seq  uint64
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Namespace]map[string]*memDoc)}
}

func (m *Memory) ReplaceDocument(_ context.Context, ns Namespace, docID string, recs []Record) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.docs[ns]
	if !ok {
		docs = make(map[string]*memDoc)
		m.docs[ns] = docs
	}
	d, ok := docs[docID]
	if !ok {
		m.seq++
		d = &memDoc{seq: m.seq}
		docs[docID] = d
	}
	now := time.Now().UTC()
	d.recs = make([]Record, len(recs))
	for i, r := range recs {
		r.DocID = docID
		r.Seq = d.seq
		r.UpdatedAt = now
		r.Vector = slices.Clone(r.Vector)
		d.recs[i] = r
	}
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, ns Namespace, docID string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[ns], docID)
	return nil
}

func (m *Memory) List(_ context.Context, ns Namespace) ([]Record, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, d := range m.docs[ns] {
		out = append(out, d.recs...)
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Count(ctx context.Context, ns Namespace) (int, error) {
	recs, err := m.List(ctx, ns)
	return len(recs), err
}

func (m *Memory) Close() error { return nil }

func sortRecords(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		if a.Seq != b.Seq {
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		}
		return a.Chunk - b.Chunk
	})
}
