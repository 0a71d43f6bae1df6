// Package vectorstore persists embedded passages in per-tenant namespaces.
// A namespace is the only unit of lookup: no operation reads or writes
// across namespaces.
package vectorstore

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Well-known collections inside a tenant.
const (
	CollectionCatalog = "catalog"
	CollectionHistory = "history"
)

// ErrInvalidNamespace is returned for a namespace with an empty or
// malformed tenant or collection.
var ErrInvalidNamespace = eris.New("vectorstore: invalid namespace")

// Namespace is a logical partition of the index owned by one tenant.
type Namespace struct {
	Tenant     string `json:"tenant"`
	Collection string `json:"collection"`
}

// Validate rejects empty parts and parts containing the key separator.
func (n Namespace) Validate() error {
	for _, part := range []string{n.Tenant, n.Collection} {
		if strings.TrimSpace(part) == "" || strings.ContainsRune(part, sep) {
			return eris.Wrapf(ErrInvalidNamespace, "%q/%q", n.Tenant, n.Collection)
		}
	}
	return nil
}

func (n Namespace) String() string {
	return n.Tenant + "/" + n.Collection
}

// Record is one embedded passage of a document.
type Record struct {
	ID       string         `json:"id"`
	DocID    string         `json:"doc_id"`
	Chunk    int            `json:"chunk"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Seq is the document's insertion sequence within the store. Updating a
	// document keeps its original sequence.
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds records. Implementations are safe for concurrent use.
type Store interface {
	// ReplaceDocument atomically replaces every record of docID in ns.
	ReplaceDocument(ctx context.Context, ns Namespace, docID string, recs []Record) error
	DeleteDocument(ctx context.Context, ns Namespace, docID string) error
	// List returns every record in ns ordered by (Seq, Chunk).
	List(ctx context.Context, ns Namespace) ([]Record, error)
	Count(ctx context.Context, ns Namespace) (int, error)
	Close() error
}

// sep separates key parts.
const sep = '\x00'
