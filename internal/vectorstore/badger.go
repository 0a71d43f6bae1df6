package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	recordPrefix = "r"
	docSeqPrefix = "d"
	docSeqName   = "docseq"
)

// Badger is a Store backed by BadgerDB. Lookups are full scans of one
// namespace's key prefix.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

// zapBadgerLogger adapts the global zap logger to badger.Logger.
type zapBadgerLogger struct{}

var _ badger.Logger = zapBadgerLogger{}

func (zapBadgerLogger) Errorf(msg string, items ...any) {
	zap.L().Error("vectorstore: badger", zap.String("msg", strings.TrimSpace(fmt.Sprintf(msg, items...))))
}

func (zapBadgerLogger) Warningf(msg string, items ...any) {
	zap.L().Warn("vectorstore: badger", zap.String("msg", strings.TrimSpace(fmt.Sprintf(msg, items...))))
}

func (zapBadgerLogger) Infof(msg string, items ...any) {
	zap.L().Debug("vectorstore: badger", zap.String("msg", strings.TrimSpace(fmt.Sprintf(msg, items...))))
}

func (zapBadgerLogger) Debugf(string, ...any) {}

// OpenBadger opens a store at dir, creating the directory if needed. An
// empty dir opens an in-memory store.
func OpenBadger(dir string) (*Badger, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "vectorstore: create %s", dir)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = zapBadgerLogger{}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "vectorstore: open badger")
	}
	seq, err := db.GetSequence([]byte(docSeqName), 100)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "vectorstore: open sequence")
	}
	return &Badger{db: db, seq: seq}, nil
}

func joinKey(parts ...string) []byte {
	return []byte(strings.Join(parts, string(sep)) + string(sep))
}

func nsPrefix(ns Namespace) []byte {
	return joinKey(recordPrefix, ns.Tenant, ns.Collection)
}

func docPrefix(ns Namespace, docID string) []byte {
	return joinKey(recordPrefix, ns.Tenant, ns.Collection, docID)
}

func recordKey(ns Namespace, docID string, chunk int) []byte {
	key := docPrefix(ns, docID)
	return binary.BigEndian.AppendUint32(key, uint32(chunk))
}

func docSeqKey(ns Namespace, docID string) []byte {
	return joinKey(docSeqPrefix, ns.Tenant, ns.Collection, docID)
}

func validDocID(docID string) error {
	if docID == "" || strings.ContainsRune(docID, sep) {
		return eris.Errorf("vectorstore: invalid document id %q", docID)
	}
	return nil
}

func (b *Badger) ReplaceDocument(_ context.Context, ns Namespace, docID string, recs []Record) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if err := validDocID(docID); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		seq, err := b.docSeq(txn, ns, docID)
		if err != nil {
			return err
		}
		if err := deletePrefix(txn, docPrefix(ns, docID)); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, r := range recs {
			r.DocID = docID
			r.Seq = seq
			r.UpdatedAt = now
			val, err := json.Marshal(r)
			if err != nil {
				return eris.Wrap(err, "vectorstore: marshal record")
			}
			if err := txn.Set(recordKey(ns, docID, r.Chunk), val); err != nil {
				return eris.Wrap(err, "vectorstore: set record")
			}
		}
		return nil
	})
	return eris.Wrapf(err, "vectorstore: replace %s in %s", docID, ns)
}

// docSeq returns the document's sequence, assigning the next one on first
// insert.
func (b *Badger) docSeq(txn *badger.Txn, ns Namespace, docID string) (uint64, error) {
	key := docSeqKey(ns, docID)
	item, err := txn.Get(key)
	switch {
	case err == nil:
		var seq uint64
		err = item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
		return seq, eris.Wrap(err, "vectorstore: read sequence")
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return 0, eris.Wrap(err, "vectorstore: get sequence")
	}

	next, err := b.seq.Next()
	if err != nil {
		return 0, eris.Wrap(err, "vectorstore: next sequence")
	}
	next++
	if err := txn.Set(key, binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return 0, eris.Wrap(err, "vectorstore: set sequence")
	}
	return next, nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return eris.Wrap(err, "vectorstore: delete record")
		}
	}
	return nil
}

func (b *Badger) DeleteDocument(_ context.Context, ns Namespace, docID string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if err := validDocID(docID); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, docPrefix(ns, docID)); err != nil {
			return err
		}
		err := txn.Delete(docSeqKey(ns, docID))
		return eris.Wrap(err, "vectorstore: delete sequence")
	})
	return eris.Wrapf(err, "vectorstore: delete %s in %s", docID, ns)
}

func (b *Badger) List(ctx context.Context, ns Namespace) ([]Record, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nsPrefix(ns)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return eris.Wrap(err, "vectorstore: decode record")
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "vectorstore: list %s", ns)
	}
	sortRecords(out)
	return out, nil
}

func (b *Badger) Count(_ context.Context, ns Namespace) (int, error) {
	if err := ns.Validate(); err != nil {
		return 0, err
	}
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nsPrefix(ns)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, eris.Wrapf(err, "vectorstore: count %s", ns)
}

func (b *Badger) Close() error {
	if err := b.seq.Release(); err != nil {
		zap.L().Warn("vectorstore: release sequence", zap.Error(err))
	}
	return eris.Wrap(b.db.Close(), "vectorstore: close")
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Badger)(nil)
)
