package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/pagesearch/internal/chunker"
	"github.com/developer-mesh/pagesearch/internal/fetcher"
	"github.com/developer-mesh/pagesearch/internal/metrics"
	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/store"
)

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.html, f.err
}

type fakeChunker struct {
	chunks []chunker.Chunk
	err    error
}

func (f *fakeChunker) Chunk(html string) ([]chunker.Chunk, error) {
	return f.chunks, f.err
}

type fakeEmbedder struct {
	failOn map[string]bool
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeStore struct {
	byHash    map[string]store.StoredChunk
	hits      []store.SearchHit
	resets    int
	deleted   int64
	existErr  error
	lastLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: make(map[string]store.StoredChunk)}
}

func (f *fakeStore) key(url, hash string) string { return url + "|" + hash }

func (f *fakeStore) ExistsByHash(ctx context.Context, url, hash string) (bool, error) {
	if f.existErr != nil {
		return false, f.existErr
	}
	_, ok := f.byHash[f.key(url, hash)]
	return ok, nil
}

func (f *fakeStore) Insert(ctx context.Context, chunk *store.StoredChunk, embedding []float32) error {
	f.byHash[f.key(chunk.URL, chunk.ContentHash)] = *chunk
	return nil
}

func (f *fakeStore) SearchNearest(ctx context.Context, url string, embedding []float32, limit int) ([]store.SearchHit, error) {
	f.lastLimit = limit
	return f.hits, nil
}

func (f *fakeStore) DeleteByURL(ctx context.Context, url string) (int64, error) {
	return f.deleted, nil
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	return int64(len(f.byHash)), nil
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.resets++
	f.byHash = make(map[string]store.StoredChunk)
	return nil
}

func makeChunks(texts ...string) []chunker.Chunk {
	chunks := make([]chunker.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, chunker.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			Markup:     "<p>" + text + "</p>",
			Text:       text,
			TokenCount: 3,
		})
	}
	return chunks
}

func newTestService(f PageFetcher, c PageChunker, e *fakeEmbedder, s ChunkStore) *SearchService {
	return NewSearchService(
		f, c, e, s,
		metrics.NewMetrics(prometheus.NewRegistry()),
		observability.NewNoopLogger(),
	)
}

func TestSearchIndexesAndQueries(t *testing.T) {
	st := newFakeStore()
	st.hits = []store.SearchHit{
		{
			StoredChunk: store.StoredChunk{
				URL: "https://example.com", HTML: "<p>first chunk text</p>",
				Content: "first chunk text", TokenCount: 3,
			},
			Distance: 0.2,
		},
	}

	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: makeChunks("first chunk text", "second chunk text")},
		&fakeEmbedder{},
		st,
	)

	resp, err := svc.Search(context.Background(), SearchRequest{
		URL:   "example.com",
		Query: "find the first",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", resp.URL)
	assert.Equal(t, 2, resp.ChunksIndexed)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "first chunk text", resp.Results[0].Text)
	assert.InDelta(t, 0.8, resp.Results[0].Score, 1e-9)
}

func TestSearchSecondPassIndexesNothing(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: makeChunks("stable chunk text", "another chunk text")},
		&fakeEmbedder{},
		st,
	)

	first, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.ChunksIndexed)

	second, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ChunksIndexed)
}

func TestSearchAppliesDefaultLimit(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: makeChunks("some chunk text")},
		&fakeEmbedder{},
		st,
	)
	svc.DefaultLimit = 25

	_, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 25, st.lastLimit)

	_, err = svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, st.lastLimit)
}

func TestSearchNoContent(t *testing.T) {
	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: nil},
		&fakeEmbedder{},
		newFakeStore(),
	)

	resp, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.Equal(t, "No text content found on the page", resp.Message)
	assert.Equal(t, 0, resp.ChunksIndexed)
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, newFakeStore())

	_, err := svc.Search(context.Background(), SearchRequest{URL: "example.com"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchInvalidURL(t *testing.T) {
	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, newFakeStore())

	_, err := svc.Search(context.Background(), SearchRequest{URL: "   ", Query: "q"})
	assert.ErrorIs(t, err, fetcher.ErrInvalidURL)
}

func TestSearchFetchFailure(t *testing.T) {
	svc := newTestService(
		&fakeFetcher{err: errors.New("connection refused")},
		&fakeChunker{},
		&fakeEmbedder{},
		newFakeStore(),
	)

	_, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestSearchPartialEmbedFailure(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: makeChunks("good chunk text", "bad chunk text")},
		&fakeEmbedder{failOn: map[string]bool{"bad chunk text": true}},
		st,
	)

	resp, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)

	// The failing chunk is skipped; the rest of the page still indexes.
	assert.Equal(t, 1, resp.ChunksIndexed)
}

func TestSearchExistenceCheckFailureSkipsChunk(t *testing.T) {
	st := newFakeStore()
	st.existErr = errors.New("db down")

	svc := newTestService(
		&fakeFetcher{html: "<html/>"},
		&fakeChunker{chunks: makeChunks("some chunk text")},
		&fakeEmbedder{},
		st,
	)

	resp, err := svc.Search(context.Background(), SearchRequest{URL: "example.com", Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ChunksIndexed)
}

func TestClearAll(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, st)

	require.NoError(t, svc.ClearAll(context.Background()))
	assert.Equal(t, 1, st.resets)
}

func TestClearURL(t *testing.T) {
	st := newFakeStore()
	st.deleted = 4
	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, st)

	url, deleted, err := svc.ClearURL(context.Background(), "example.com/docs")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", url)
	assert.Equal(t, int64(4), deleted)
}

func TestClearURLEmpty(t *testing.T) {
	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, newFakeStore())

	_, _, err := svc.ClearURL(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestStats(t *testing.T) {
	st := newFakeStore()
	st.byHash["a"] = store.StoredChunk{}
	st.byHash["b"] = store.StoredChunk{}

	svc := newTestService(&fakeFetcher{}, &fakeChunker{}, &fakeEmbedder{}, st)

	count, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
