package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/pagesearch/internal/fetcher"
	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/service"
)

type fakeService struct {
	searchResp *service.SearchResponse
	searchErr  error
	clearErr   error
	clearedURL string
	deleted    int64
	clearURLEr error
	statCount  int64
	statErr    error
}

func (f *fakeService) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	return f.searchResp, f.searchErr
}

func (f *fakeService) ClearAll(ctx context.Context) error {
	return f.clearErr
}

func (f *fakeService) ClearURL(ctx context.Context, url string) (string, int64, error) {
	return f.clearedURL, f.deleted, f.clearURLEr
}

func (f *fakeService) Stats(ctx context.Context) (int64, error) {
	return f.statCount, f.statErr
}

func newTestRouter(svc SearchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(svc, observability.NewNoopLogger()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSearchEndpoint(t *testing.T) {
	svc := &fakeService{
		searchResp: &service.SearchResponse{
			Results: []service.SearchResult{
				{Text: "matched chunk", Score: 0.9, Tokens: 2, URL: "https://example.com"},
			},
			Total:         1,
			ChunksIndexed: 5,
			URL:           "https://example.com",
		},
	}
	router := newTestRouter(svc)

	w := doJSON(t, router, http.MethodPost, "/search", gin.H{
		"url":   "example.com",
		"query": "find something",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp service.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 5, resp.ChunksIndexed)
	assert.Equal(t, "matched chunk", resp.Results[0].Text)
}

func TestSearchEndpointValidation(t *testing.T) {
	router := newTestRouter(&fakeService{})

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "missing url", body: gin.H{"query": "q"}},
		{name: "missing query", body: gin.H{"url": "example.com"}},
		{name: "limit too large", body: gin.H{"url": "example.com", "query": "q", "limit": 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSearchEndpointInvalidURL(t *testing.T) {
	router := newTestRouter(&fakeService{searchErr: fetcher.ErrInvalidURL})

	w := doJSON(t, router, http.MethodPost, "/search", gin.H{"url": "::", "query": "q"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpointFetchFailure(t *testing.T) {
	router := newTestRouter(&fakeService{
		searchErr: &fetcher.FetchError{URL: "https://example.com", Attempts: 2, StatusCode: 403},
	})

	w := doJSON(t, router, http.MethodPost, "/search", gin.H{"url": "example.com", "query": "q"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "blocking automated requests")
}

func TestSearchEndpointInternalFailure(t *testing.T) {
	router := newTestRouter(&fakeService{searchErr: errors.New("store unavailable")})

	w := doJSON(t, router, http.MethodPost, "/search", gin.H{"url": "example.com", "query": "q"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClearEndpoint(t *testing.T) {
	router := newTestRouter(&fakeService{})

	w := doJSON(t, router, http.MethodDelete, "/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cleared", resp["status"])
}

func TestClearEndpointFailure(t *testing.T) {
	router := newTestRouter(&fakeService{clearErr: errors.New("boom")})

	w := doJSON(t, router, http.MethodDelete, "/clear", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClearURLEndpoint(t *testing.T) {
	router := newTestRouter(&fakeService{clearedURL: "https://example.com", deleted: 3})

	w := doJSON(t, router, http.MethodDelete, "/clear-url", gin.H{"url": "example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cleared", resp["status"])
	assert.Equal(t, "https://example.com", resp["url"])
	assert.Equal(t, float64(3), resp["deleted"])
}

func TestClearURLEndpointMissingBody(t *testing.T) {
	router := newTestRouter(&fakeService{})

	w := doJSON(t, router, http.MethodDelete, "/clear-url", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeService{statCount: 10})

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealthEndpointDegraded(t *testing.T) {
	router := newTestRouter(&fakeService{statErr: errors.New("store down")})

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(&fakeService{statCount: 42})

	w := doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["total_chunks"])
}

func TestStatsEndpointErrorStillOK(t *testing.T) {
	router := newTestRouter(&fakeService{statErr: errors.New("store down")})

	w := doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "store down", resp["error"])
}
