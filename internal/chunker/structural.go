package chunker

import (
	"crypto/md5" // #nosec G401 -- intra-pass dedup key, not a security boundary
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/tokenizer"
)

// blockSelector lists the elements considered chunk candidates, in document
// order: containers, sectioning elements, headings, lists, tables and leaf
// text tags.
const blockSelector = "div, section, article, header, footer, nav, main, aside, " +
	"p, h1, h2, h3, h4, h5, h6, ul, ol, table, li, span"

// leafSelector lists the narrower set of direct children an oversized
// candidate is subdivided into.
const leafSelector = "p, li, td, h1, h2, h3, h4, h5, h6"

// StructuralChunker walks a parsed page and emits one chunk per candidate
// element, deduplicating by text so a parent and an already-captured child are
// never both indexed. Oversized candidates are subdivided one level into leaf
// children; candidates with no leaf children fall back to sentence packing.
type StructuralChunker struct {
	MaxTokens    int
	MinTextLen   int
	MaxBodyChars int

	counter   tokenizer.Counter
	sentences *SentenceChunker
	logger    observability.Logger
}

// NewStructuralChunker creates a structural chunker with the default limits.
func NewStructuralChunker(counter tokenizer.Counter, logger observability.Logger) *StructuralChunker {
	return &StructuralChunker{
		MaxTokens:    MaxBlockTokens,
		MinTextLen:   MinTextLen,
		MaxBodyChars: MaxBodyFallback,
		counter:      counter,
		sentences:    NewSentenceChunker(counter, logger),
		logger:       logger.WithPrefix("structural-chunker"),
	}
}

// Chunk parses raw HTML and produces the page's chunks. A page from which
// nothing qualifies yields a single chunk built from the document's overall
// text, or no chunks at all when even that is empty.
func (c *StructuralChunker) Chunk(html string) ([]Chunk, error) {
	doc, err := ParseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	candidates := doc.Candidates(blockSelector)
	c.logger.Debug("Collected candidate elements", map[string]interface{}{
		"count": len(candidates),
	})

	var chunks []Chunk
	seen := make(map[string]struct{})

	for _, el := range candidates {
		chunks = append(chunks, c.chunkElement(el, seen)...)
	}

	if len(chunks) == 0 {
		chunks = c.bodyFallback(doc, seen)
	}

	return chunks, nil
}

// chunkElement emits the chunks for one candidate element, tracking emitted
// text hashes in seen across the whole pass.
func (c *StructuralChunker) chunkElement(el Element, seen map[string]struct{}) []Chunk {
	text := el.Text()
	if utf8.RuneCountInString(text) < c.MinTextLen {
		return nil
	}

	key := seenKey(text)
	if _, ok := seen[key]; ok {
		return nil
	}
	seen[key] = struct{}{}

	tokens, err := c.counter.Count(text)
	if err != nil {
		c.logger.Warn("Token count failed, skipping element", map[string]interface{}{
			"error":     err.Error(),
			"text_size": len(text),
		})
		return nil
	}

	if tokens <= c.MaxTokens {
		markup, err := el.Markup()
		if err != nil {
			c.logger.Warn("Failed to render element markup, skipping", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		return []Chunk{{
			ID:         uuid.New().String(),
			Markup:     markup,
			Text:       text,
			TokenCount: tokens,
		}}
	}

	// Too large: subdivide one level into leaf children. Children still over
	// the limit are dropped here rather than recursed further.
	children := el.Children(leafSelector)
	if len(children) > 0 {
		return c.chunkChildren(children, seen)
	}

	// No leaf children: pack the flattened text sentence by sentence.
	return c.sentenceFallback(text, seen)
}

func (c *StructuralChunker) chunkChildren(children []Element, seen map[string]struct{}) []Chunk {
	var chunks []Chunk

	for _, child := range children {
		text := child.Text()
		if utf8.RuneCountInString(text) < c.MinTextLen {
			continue
		}

		key := seenKey(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		tokens, err := c.counter.Count(text)
		if err != nil {
			c.logger.Warn("Token count failed, skipping child element", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if tokens > c.MaxTokens {
			continue
		}

		markup, err := child.Markup()
		if err != nil {
			continue
		}

		chunks = append(chunks, Chunk{
			ID:         uuid.New().String(),
			Markup:     markup,
			Text:       text,
			TokenCount: tokens,
		})
	}

	return chunks
}

// sentenceFallback packs an oversized element's flattened text into budget-
// sized chunks, wrapping each fragment in a synthetic container tagged with
// its sequence index. Fragments whose text was already emitted this pass are
// dropped, so repetitive prose never yields two chunks with the same text.
func (c *StructuralChunker) sentenceFallback(text string, seen map[string]struct{}) []Chunk {
	var chunks []Chunk
	for _, chunk := range c.sentences.Chunk(SplitSentences(text), c.MaxTokens) {
		key := seenKey(chunk.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		chunk.Markup = fmt.Sprintf(`<div class="chunk-%d">%s</div>`, len(chunks), chunk.Text)
		chunks = append(chunks, chunk)
	}

	return chunks
}

// bodyFallback builds a single chunk from the document's overall text when
// no candidate produced anything, truncated to MaxBodyChars.
func (c *StructuralChunker) bodyFallback(doc *Document, seen map[string]struct{}) []Chunk {
	body := doc.Text()
	c.logger.Warn("No chunks extracted from elements, falling back to body text", map[string]interface{}{
		"body_size": len(body),
	})

	if len(body) <= minBodyTextChars {
		return nil
	}

	if len(body) > c.MaxBodyChars {
		cut := c.MaxBodyChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	key := seenKey(body)
	if _, ok := seen[key]; ok {
		return nil
	}
	seen[key] = struct{}{}

	tokens, err := c.counter.Count(body)
	if err != nil {
		return nil
	}

	return []Chunk{{
		ID:         uuid.New().String(),
		Markup:     fmt.Sprintf("<div>%s</div>", body),
		Text:       body,
		TokenCount: tokens,
	}}
}

// seenKey hashes flattened text for the intra-pass duplicate set.
func seenKey(text string) string {
	sum := md5.Sum([]byte(text)) // #nosec G401
	return hex.EncodeToString(sum[:])
}
