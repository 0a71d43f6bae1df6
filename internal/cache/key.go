package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize returns the canonical form of query text used for cache keys:
// NFKC-normalized, Unicode case-folded, with runs of whitespace collapsed to
// a single space.
func Normalize(s string) string {
	s = folder.String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// Key derives a content-addressed cache key from the query text and any
// context fields that change the answer (tenant, sector). Parts are
// normalized individually so that "Acme  Inc" and "acme inc" share a key.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(Normalize(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
