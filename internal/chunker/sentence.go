package chunker

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/tokenizer"
)

// SentenceChunker packs an ordered sequence of text units into chunks that
// stay within a token budget. Units that alone exceed the budget are split
// greedily by words; a single word over the budget is still emitted on its
// own, so the budget is advisory for indivisible atoms.
type SentenceChunker struct {
	counter tokenizer.Counter
	logger  observability.Logger
}

// NewSentenceChunker creates a new sentence chunker
func NewSentenceChunker(counter tokenizer.Counter, logger observability.Logger) *SentenceChunker {
	return &SentenceChunker{
		counter: counter,
		logger:  logger.WithPrefix("sentence-chunker"),
	}
}

// Chunk packs units into chunks of at most maxTokens tokens each. Units whose
// token count cannot be computed are skipped, never aborting the whole pass.
// The produced chunks carry text only; markup is left empty.
func (s *SentenceChunker) Chunk(units []string, maxTokens int) []Chunk {
	var chunks []Chunk
	current := ""
	currentTokens := 0

	for _, unit := range units {
		count, err := s.counter.Count(unit)
		if err != nil {
			s.logger.Warn("Token count failed, skipping unit", map[string]interface{}{
				"error":     err.Error(),
				"unit_size": len(unit),
			})
			continue
		}

		if count > maxTokens {
			if current != "" {
				chunks = append(chunks, s.newChunk(current, currentTokens))
				current = ""
				currentTokens = 0
			}
			chunks = append(chunks, s.splitByWords(unit, maxTokens)...)
			continue
		}

		candidate := unit
		if current != "" {
			candidate = current + " " + unit
		}

		candTokens, err := s.counter.Count(candidate)
		if err != nil {
			s.logger.Warn("Token count failed, skipping unit", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if candTokens <= maxTokens {
			current = candidate
			currentTokens = candTokens
		} else {
			if current != "" {
				chunks = append(chunks, s.newChunk(current, currentTokens))
			}
			current = unit
			currentTokens = count
		}
	}

	if current != "" {
		chunks = append(chunks, s.newChunk(current, currentTokens))
	}

	return chunks
}

// splitByWords greedily concatenates whitespace-separated words until the
// running token count reaches the budget, emitting each word group as a chunk.
func (s *SentenceChunker) splitByWords(unit string, maxTokens int) []Chunk {
	var chunks []Chunk
	var piece []string

	for _, word := range strings.Fields(unit) {
		piece = append(piece, word)
		text := strings.Join(piece, " ")

		count, err := s.counter.Count(text)
		if err != nil {
			s.logger.Warn("Token count failed inside word split, keeping piece for next word", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if count >= maxTokens {
			chunks = append(chunks, s.newChunk(text, count))
			piece = nil
		}
	}

	if len(piece) > 0 {
		text := strings.Join(piece, " ")
		count, err := s.counter.Count(text)
		if err != nil {
			count = 0
		}
		chunks = append(chunks, s.newChunk(text, count))
	}

	return chunks
}

func (s *SentenceChunker) newChunk(text string, tokens int) Chunk {
	return Chunk{
		ID:         uuid.New().String(),
		Text:       text,
		TokenCount: tokens,
	}
}

// SplitSentences splits text into sentence-like units on terminal punctuation
// followed by whitespace and an upper-case start. Common abbreviations and
// decimal points do not terminate a sentence.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if !isSentenceEnd(runes, i) {
			continue
		}

		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// isSentenceEnd checks if the rune at pos terminates a sentence.
func isSentenceEnd(runes []rune, pos int) bool {
	r := runes[pos]
	if r != '.' && r != '!' && r != '?' {
		return false
	}

	if r == '.' {
		wordStart := pos
		for wordStart > 0 && !unicode.IsSpace(runes[wordStart-1]) {
			wordStart--
		}
		if abbreviations[strings.ToLower(string(runes[wordStart:pos]))] {
			return false
		}

		// Decimal numbers such as 3.14
		if pos > 0 && pos+1 < len(runes) &&
			unicode.IsDigit(runes[pos-1]) &&
			unicode.IsDigit(runes[pos+1]) {
			return false
		}
	}

	if pos+1 >= len(runes) {
		return true
	}

	next := pos + 1
	for next < len(runes) && (runes[next] == '"' || runes[next] == '\'' || runes[next] == ')') {
		next++
	}
	if next < len(runes) && !unicode.IsSpace(runes[next]) {
		return false
	}
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	return unicode.IsUpper(runes[next])
}

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "inc": true, "corp": true, "co": true,
	"ltd": true, "vs": true, "etc": true, "i.e": true, "e.g": true,
	"st": true, "ave": true, "u.s": true, "u.k": true,
}
