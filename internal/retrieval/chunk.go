package retrieval

import (
	"strings"
	"unicode"
)

// Chunking defaults, in runes.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 128
	DefaultChunkMin     = 100
)

// Chunker splits text into overlapping passages of at most Size runes.
// A split lands on the latest paragraph, sentence, line or word boundary
// that keeps the passage at least Min runes long, in that order of
// preference. A trailing fragment shorter than Min is merged into the
// previous passage.
type Chunker struct {
	Size    int
	Overlap int
	Min     int
}

// NewChunker returns a chunker, replacing out-of-range values with the
// defaults.
func NewChunker(size, overlap, minSize int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/4)
	}
	if minSize < 0 || minSize > size {
		minSize = min(DefaultChunkMin, size/2)
	}
	return Chunker{Size: size, Overlap: overlap, Min: minSize}
}

type span struct{ start, end int }

// Split returns the passages of text. Blank text yields no passages.
func (c Chunker) Split(text string) []string {
	r := []rune(strings.TrimSpace(text))
	n := len(r)
	if n == 0 {
		return nil
	}
	if n <= c.Size {
		return []string{string(r)}
	}

	var spans []span
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		cut := c.boundary(r, start, end)
		spans = append(spans, span{start, cut})
		start = c.nextStart(r, start, cut)
	}

	if len(spans) > 1 {
		last := spans[len(spans)-1]
		if runeLen(r[last.start:last.end]) < c.Min {
			spans = spans[:len(spans)-1]
			spans[len(spans)-1].end = n
		}
	}

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		if p := strings.TrimSpace(string(r[s.start:s.end])); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// boundary finds the split point in (start+Min, end].
func (c Chunker) boundary(r []rune, start, end int) int {
	lo := start + max(c.Min, 1)
	for _, isBoundary := range []func(r []rune, i int) bool{
		paragraphBoundary,
		sentenceBoundary,
		lineBoundary,
		wordBoundary,
	} {
		for i := end; i > lo; i-- {
			if isBoundary(r, i) {
				return i
			}
		}
	}
	return end
}

// nextStart steps back by Overlap from cut and moves forward to the next
// word start. An overlap window without any whitespace is kept as is.
func (c Chunker) nextStart(r []rune, start, cut int) int {
	next := cut - c.Overlap
	if next <= start {
		return cut
	}
	spaced := false
	for i := next; i < cut; i++ {
		if unicode.IsSpace(r[i]) {
			spaced = true
			continue
		}
		if i > 0 && unicode.IsSpace(r[i-1]) {
			return i
		}
	}
	if spaced {
		return cut
	}
	return next
}

func paragraphBoundary(r []rune, i int) bool {
	return i >= 2 && r[i-1] == '\n' && r[i-2] == '\n'
}

func sentenceBoundary(r []rune, i int) bool {
	if i < 1 || i >= len(r) || !unicode.IsSpace(r[i]) {
		return false
	}
	switch r[i-1] {
	case '.', '!', '?', '。':
		return true
	}
	return false
}

func lineBoundary(r []rune, i int) bool {
	return i >= 1 && r[i-1] == '\n'
}

func wordBoundary(r []rune, i int) bool {
	return i < len(r) && unicode.IsSpace(r[i])
}

func runeLen(r []rune) int {
	return len([]rune(strings.TrimSpace(string(r))))
}
