// Package service implements the page indexing and semantic search workflow
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/developer-mesh/pagesearch/internal/chunker"
	"github.com/developer-mesh/pagesearch/internal/embedding"
	"github.com/developer-mesh/pagesearch/internal/fetcher"
	"github.com/developer-mesh/pagesearch/internal/metrics"
	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/store"
)

// PageFetcher retrieves raw HTML for a URL
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageChunker splits HTML into indexable chunks
type PageChunker interface {
	Chunk(html string) ([]chunker.Chunk, error)
}

// ChunkStore persists chunks and answers nearest-neighbor queries
type ChunkStore interface {
	ExistsByHash(ctx context.Context, url, hash string) (bool, error)
	Insert(ctx context.Context, chunk *store.StoredChunk, embedding []float32) error
	SearchNearest(ctx context.Context, url string, embedding []float32, limit int) ([]store.SearchHit, error)
	DeleteByURL(ctx context.Context, url string) (int64, error)
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

// SearchRequest asks for the chunks of a page most similar to a query
type SearchRequest struct {
	URL   string
	Query string
	Limit int
}

// SearchResult is one matched chunk with its similarity score
type SearchResult struct {
	HTML   string  `json:"html"`
	Text   string  `json:"text"`
	URL    string  `json:"url"`
	Tokens int     `json:"tokens"`
	Score  float64 `json:"score"`
}

// SearchResponse is the outcome of a search. Message is set when the page
// produced no indexable content.
type SearchResponse struct {
	Results       []SearchResult `json:"results"`
	Total         int            `json:"total"`
	ChunksIndexed int            `json:"chunks_indexed"`
	URL           string         `json:"url"`
	Message       string         `json:"message,omitempty"`
}

// SearchService fetches, chunks, embeds, stores, and searches pages
type SearchService struct {
	// DefaultLimit caps result counts for requests that do not set one.
	// Zero defers to the store's own default.
	DefaultLimit int

	fetcher  PageFetcher
	chunker  PageChunker
	embedder embedding.Provider
	store    ChunkStore
	metrics  *metrics.Metrics
	logger   observability.Logger
}

// NewSearchService creates a new search service
func NewSearchService(
	pageFetcher PageFetcher,
	pageChunker PageChunker,
	embedder embedding.Provider,
	chunkStore ChunkStore,
	m *metrics.Metrics,
	logger observability.Logger,
) *SearchService {
	return &SearchService{
		fetcher:  pageFetcher,
		chunker:  pageChunker,
		embedder: embedder,
		store:    chunkStore,
		metrics:  m,
		logger:   logger.WithPrefix("search-service"),
	}
}

// Search indexes the requested page if needed, then returns the stored
// chunks nearest to the query. Chunks already stored for the URL are not
// re-embedded.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	started := time.Now()

	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = s.DefaultLimit
	}

	pageURL, err := fetcher.NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	response, err := s.search(ctx, pageURL, req)
	s.metrics.RecordSearch(resultCount(response), time.Since(started).Seconds(), err)
	return response, err
}

func (s *SearchService) search(ctx context.Context, pageURL string, req SearchRequest) (*SearchResponse, error) {
	fetchStart := time.Now()
	html, err := s.fetcher.Fetch(ctx, pageURL)
	s.metrics.RecordFetch(time.Since(fetchStart).Seconds(), err)
	if err != nil {
		return nil, err
	}

	chunkStart := time.Now()
	chunks, err := s.chunker.Chunk(html)
	s.metrics.ChunkingDuration.Observe(time.Since(chunkStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to chunk page: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.Warn("No indexable content found", map[string]interface{}{
			"url": pageURL,
		})
		return &SearchResponse{
			Results: []SearchResult{},
			URL:     pageURL,
			Message: "No text content found on the page",
		}, nil
	}

	chunks = chunker.Dedupe(chunks)

	indexed, skipped := s.indexChunks(ctx, pageURL, chunks)
	s.metrics.RecordIndexing(len(chunks), indexed, skipped)

	s.logger.Info("Page indexed", map[string]interface{}{
		"url":     pageURL,
		"chunks":  len(chunks),
		"indexed": indexed,
		"skipped": skipped,
	})

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		s.metrics.EmbeddingErrors.Inc()
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	searchStart := time.Now()
	hits, err := s.store.SearchNearest(ctx, pageURL, queryVector, req.Limit)
	s.metrics.StorageDuration.Observe(time.Since(searchStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{
			HTML:   hit.HTML,
			Text:   hit.Content,
			URL:    hit.URL,
			Tokens: hit.TokenCount,
			Score:  1.0 - hit.Distance,
		})
	}

	return &SearchResponse{
		Results:       results,
		Total:         len(results),
		ChunksIndexed: indexed,
		URL:           pageURL,
	}, nil
}

// indexChunks embeds and stores chunks not yet present for the URL. A single
// failing chunk is logged and skipped rather than failing the whole pass.
func (s *SearchService) indexChunks(ctx context.Context, pageURL string, chunks []chunker.Chunk) (indexed, skipped int) {
	for _, chunk := range chunks {
		exists, err := s.store.ExistsByHash(ctx, pageURL, chunk.ContentHash)
		if err != nil {
			s.logger.Error("Failed to check chunk existence", map[string]interface{}{
				"url":   pageURL,
				"hash":  chunk.ContentHash,
				"error": err.Error(),
			})
			continue
		}
		if exists {
			skipped++
			continue
		}

		embedStart := time.Now()
		vector, err := s.embedder.Embed(ctx, chunk.Text)
		s.metrics.EmbeddingDuration.Observe(time.Since(embedStart).Seconds())
		if err != nil {
			s.metrics.EmbeddingErrors.Inc()
			s.logger.Error("Failed to embed chunk", map[string]interface{}{
				"url":   pageURL,
				"hash":  chunk.ContentHash,
				"error": err.Error(),
			})
			continue
		}
		s.metrics.EmbeddingsGenerated.Inc()

		stored := &store.StoredChunk{
			URL:         pageURL,
			HTML:        chunk.Markup,
			Content:     chunk.Text,
			ContentHash: chunk.ContentHash,
			TokenCount:  chunk.TokenCount,
		}
		if err := s.store.Insert(ctx, stored, vector); err != nil {
			s.logger.Error("Failed to store chunk", map[string]interface{}{
				"url":   pageURL,
				"hash":  chunk.ContentHash,
				"error": err.Error(),
			})
			continue
		}
		indexed++
	}

	return indexed, skipped
}

// ClearAll removes every stored chunk and recreates the schema
func (s *SearchService) ClearAll(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}

	s.logger.Info("All chunks cleared", nil)
	return nil
}

// ClearURL removes all chunks stored for one URL and reports how many
func (s *SearchService) ClearURL(ctx context.Context, rawURL string) (string, int64, error) {
	if rawURL == "" {
		return "", 0, ErrEmptyURL
	}

	pageURL, err := fetcher.NormalizeURL(rawURL)
	if err != nil {
		return "", 0, err
	}

	deleted, err := s.store.DeleteByURL(ctx, pageURL)
	if err != nil {
		return "", 0, err
	}

	s.metrics.ChunksDeleted.Add(float64(deleted))
	return pageURL, deleted, nil
}

// Stats returns the total number of stored chunks
func (s *SearchService) Stats(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func resultCount(resp *SearchResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Results)
}
