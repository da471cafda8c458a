package chunker

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText returns the hex-encoded SHA-256 digest of the UTF-8 encoding of
// text. The digest is the chunk's stable identity key in the store.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Dedupe assigns each chunk its content hash and drops chunks whose hash has
// already been seen. The first occurrence wins; order is preserved.
func Dedupe(chunks []Chunk) []Chunk {
	seen := make(map[string]struct{}, len(chunks))
	unique := make([]Chunk, 0, len(chunks))

	for _, c := range chunks {
		c.ContentHash = HashText(c.Text)
		if _, ok := seen[c.ContentHash]; ok {
			continue
		}
		seen[c.ContentHash] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}
