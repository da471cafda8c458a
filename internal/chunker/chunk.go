// Package chunker splits raw HTML into deduplicated, token-bounded text
// chunks suitable for embedding and vector storage.
package chunker

// Defaults for structural chunking. MaxBlockTokens bounds a chunk's token
// count; elements over it are subdivided. Elements whose flattened text is
// shorter than MinTextLen are too small to be useful search units.
const (
	MaxBlockTokens   = 500
	MinTextLen       = 15
	MaxBodyFallback  = 5000
	minBodyTextChars = 20
)

// Chunk is one indexable fragment of a page: the original markup (or a
// synthetic wrapper), its flattened text, and the text's token count. The
// content hash is filled in by Dedupe.
type Chunk struct {
	ID          string
	Markup      string
	Text        string
	TokenCount  int
	ContentHash string
}
