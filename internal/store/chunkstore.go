// Package store implements pgvector-backed persistence for page chunks
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/developer-mesh/pagesearch/internal/observability"
)

// StoredChunk is a persisted page chunk. The embedding column is written via
// formatVector and never scanned back.
type StoredChunk struct {
	ID          uuid.UUID `db:"id" json:"id"`
	URL         string    `db:"url" json:"url"`
	HTML        string    `db:"html" json:"html"`
	Content     string    `db:"content" json:"content"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	TokenCount  int       `db:"token_count" json:"token_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SearchHit is a stored chunk with its cosine distance to the query vector
type SearchHit struct {
	StoredChunk
	Distance float64 `db:"distance" json:"distance"`
}

// ChunkStore handles chunk data access
type ChunkStore struct {
	db         *sqlx.DB
	dimensions int
	logger     observability.Logger
}

// NewChunkStore creates a new chunk store. dimensions must match the
// embedding provider's vector size.
func NewChunkStore(db *sqlx.DB, dimensions int, logger observability.Logger) *ChunkStore {
	return &ChunkStore{
		db:         db,
		dimensions: dimensions,
		logger:     logger.WithPrefix("chunk-store"),
	}
}

// EnsureSchema creates the pgvector extension, the page_chunks table, and
// its indexes when missing.
func (s *ChunkStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS page_chunks (
				id UUID PRIMARY KEY,
				url TEXT NOT NULL,
				html TEXT NOT NULL,
				content TEXT NOT NULL,
				content_hash VARCHAR(64) NOT NULL,
				token_count INTEGER NOT NULL,
				embedding vector(%d) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (url, content_hash)
			)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_page_chunks_url ON page_chunks (url)`,
		`CREATE INDEX IF NOT EXISTS idx_page_chunks_embedding
			ON page_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	s.logger.Info("Schema ensured", map[string]interface{}{
		"dimensions": s.dimensions,
	})
	return nil
}

// Reset drops the page_chunks table and recreates the schema
func (s *ChunkStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS page_chunks`); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	s.logger.Info("Store reset", nil)
	return s.EnsureSchema(ctx)
}

// ExistsByHash checks whether a chunk with the given content hash already
// exists for the URL.
func (s *ChunkStore) ExistsByHash(ctx context.Context, url, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM page_chunks WHERE url = $1 AND content_hash = $2)`

	err := s.db.GetContext(ctx, &exists, query, url, hash)
	if err != nil {
		return false, fmt.Errorf("failed to check chunk existence: %w", err)
	}

	return exists, nil
}

// Insert stores a chunk with its embedding. Inserting a duplicate
// (url, content_hash) pair is a no-op.
func (s *ChunkStore) Insert(ctx context.Context, chunk *StoredChunk, embedding []float32) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if len(embedding) != s.dimensions {
		return fmt.Errorf("embedding size mismatch: got %d, want %d", len(embedding), s.dimensions)
	}

	query := `
		INSERT INTO page_chunks (
			id, url, html, content, content_hash, token_count, embedding, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (url, content_hash) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		chunk.ID, chunk.URL, chunk.HTML, chunk.Content,
		chunk.ContentHash, chunk.TokenCount, formatVector(embedding),
		chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

// SearchNearest returns up to limit chunks for the URL ordered by cosine
// distance to the query embedding.
func (s *ChunkStore) SearchNearest(ctx context.Context, url string, embedding []float32, limit int) ([]SearchHit, error) {
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("embedding size mismatch: got %d, want %d", len(embedding), s.dimensions)
	}
	if limit <= 0 {
		limit = 10
	}

	var hits []SearchHit
	query := `
		SELECT id, url, html, content, content_hash, token_count, created_at,
		       embedding <=> $2 AS distance
		FROM page_chunks
		WHERE url = $1
		ORDER BY embedding <=> $2
		LIMIT $3`

	err := s.db.SelectContext(ctx, &hits, query, url, formatVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	return hits, nil
}

// DeleteByURL removes all chunks for a URL and returns the count removed
func (s *ChunkStore) DeleteByURL(ctx context.Context, url string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM page_chunks WHERE url = $1`, url)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("Deleted chunks for URL", map[string]interface{}{
		"url":     url,
		"deleted": deleted,
	})
	return deleted, nil
}

// Count returns the total number of stored chunks
func (s *ChunkStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM page_chunks`)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}

	return count, nil
}

// formatVector renders a float32 slice in pgvector text format
func formatVector(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
