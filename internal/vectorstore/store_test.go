package vectorstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"badger": func(t *testing.T) Store {
			b, err := OpenBadger("")
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() }) //nolint:errcheck
			return b
		},
	}
}

var (
	acmeCatalog   = Namespace{Tenant: "acme", Collection: CollectionCatalog}
	globexCatalog = Namespace{Tenant: "globex", Collection: CollectionCatalog}
	acmeHistory   = Namespace{Tenant: "acme", Collection: CollectionHistory}
)

func recs(texts ...string) []Record {
	out := make([]Record, len(texts))
	for i, t := range texts {
		out[i] = Record{ID: t, Chunk: i, Text: t, Vector: []float32{float32(i), 1}}
	}
	return out
}

func TestStore_Contract(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("replace and list in insertion order", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc-b", recs("b0", "b1")))
				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc-a", recs("a0")))

				got, err := s.List(ctx, acmeCatalog)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []string{"b0", "b1", "a0"}, []string{got[0].Text, got[1].Text, got[2].Text})
				assert.Less(t, got[0].Seq, got[2].Seq)
				assert.Equal(t, "doc-b", got[0].DocID)
				assert.Equal(t, []float32{1, 1}, got[1].Vector)
				assert.False(t, got[0].UpdatedAt.IsZero())
			})

			t.Run("update keeps sequence and drops stale chunks", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc-a", recs("a0", "a1", "a2")))
				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc-b", recs("b0")))
				before, _ := s.List(ctx, acmeCatalog)

				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc-a", recs("a0-new")))
				got, err := s.List(ctx, acmeCatalog)
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Equal(t, "a0-new", got[0].Text)
				assert.Equal(t, before[0].Seq, got[0].Seq)

				n, err := s.Count(ctx, acmeCatalog)
				require.NoError(t, err)
				assert.Equal(t, 2, n)
			})

			t.Run("namespaces are isolated", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.ReplaceDocument(ctx, acmeCatalog, "doc", recs("acme")))
				require.NoError(t, s.ReplaceDocument(ctx, globexCatalog, "doc", recs("globex")))
				require.NoError(t, s.ReplaceDocument(ctx, acmeHistory, "doc", recs("history")))

				got, err := s.List(ctx, globexCatalog)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, "globex", got[0].Text)

				require.NoError(t, s.DeleteDocument(ctx, acmeCatalog, "doc"))
				got, _ = s.List(ctx, acmeCatalog)
				assert.Empty(t, got)
				got, _ = s.List(ctx, acmeHistory)
				assert.Len(t, got, 1)
			})

			t.Run("invalid namespace", func(t *testing.T) {
				s := newStore(t)
				err := s.ReplaceDocument(ctx, Namespace{Tenant: "", Collection: "catalog"}, "doc", recs("x"))
				assert.True(t, eris.Is(err, ErrInvalidNamespace))
				_, err = s.List(ctx, Namespace{Tenant: "a\x00b", Collection: "catalog"})
				assert.True(t, eris.Is(err, ErrInvalidNamespace))
			})

			t.Run("concurrent writers", func(t *testing.T) {
				s := newStore(t)
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						ns := acmeCatalog
						if i%2 == 1 {
							ns = globexCatalog
						}
						assert.NoError(t, s.ReplaceDocument(ctx, ns, string(rune('a'+i)), recs("x")))
					}(i)
				}
				wg.Wait()
				n, err := s.Count(ctx, acmeCatalog)
				require.NoError(t, err)
				assert.Equal(t, 10, n)
			})
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	b, err := OpenBadger(dir)
	require.NoError(t, err)
	require.NoError(t, b.ReplaceDocument(ctx, acmeCatalog, "doc-a", recs("a0")))
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	got, err := b.List(ctx, acmeCatalog)
	require.NoError(t, err)
	require.Len(t, got, 1)
	first := got[0].Seq

	require.NoError(t, b.ReplaceDocument(ctx, acmeCatalog, "doc-b", recs("b0")))
	got, err = b.List(ctx, acmeCatalog)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "doc-a", got[0].DocID)
	assert.Greater(t, got[1].Seq, first, "sequence continues after reopen")
}

func TestBadger_RejectsBadDocID(t *testing.T) {
	b, err := OpenBadger("")
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	assert.Error(t, b.ReplaceDocument(context.Background(), acmeCatalog, "", recs("x")))
	assert.Error(t, b.DeleteDocument(context.Background(), acmeCatalog, "a\x00b"))
}
