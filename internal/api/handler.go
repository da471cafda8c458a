// Package api implements the REST API for the page search service
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/developer-mesh/pagesearch/internal/fetcher"
	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/service"
)

// SearchService is the service surface the handler needs
type SearchService interface {
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	ClearAll(ctx context.Context) error
	ClearURL(ctx context.Context, url string) (string, int64, error)
	Stats(ctx context.Context) (int64, error)
}

// Handler handles API requests
type Handler struct {
	service SearchService
	logger  observability.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc SearchService, logger observability.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  logger.WithPrefix("api"),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/search", h.search)
	router.DELETE("/clear", h.clearAll)
	router.DELETE("/clear-url", h.clearURL)
	router.GET("/health", h.health)
	router.GET("/stats", h.stats)
}

// searchRequest is the body for POST /search
type searchRequest struct {
	URL   string `json:"url" binding:"required"`
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit" binding:"omitempty,min=1,max=100"`
}

// clearURLRequest is the body for DELETE /clear-url
type clearURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// search indexes a page on demand and returns the chunks nearest the query
func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Search(c.Request.Context(), service.SearchRequest{
		URL:   req.URL,
		Query: req.Query,
		Limit: req.Limit,
	})
	if err != nil {
		h.logger.Error("Search failed", map[string]interface{}{
			"url":   req.URL,
			"error": err.Error(),
		})
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// clearAll deletes every stored chunk
func (h *Handler) clearAll(c *gin.Context) {
	if err := h.service.ClearAll(c.Request.Context()); err != nil {
		h.logger.Error("Clear failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "cleared",
		"message": "All indexed chunks have been removed",
	})
}

// clearURL deletes the stored chunks for one URL
func (h *Handler) clearURL(c *gin.Context) {
	var req clearURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pageURL, deleted, err := h.service.ClearURL(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Error("Clear URL failed", map[string]interface{}{
			"url":   req.URL,
			"error": err.Error(),
		})
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "cleared",
		"url":     pageURL,
		"deleted": deleted,
	})
}

// health reports service and store readiness
func (h *Handler) health(c *gin.Context) {
	if _, err := h.service.Stats(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  "reachable",
	})
}

// stats returns index statistics. Failures are reported in the body with a
// 200 status so dashboards polling this endpoint keep rendering.
func (h *Handler) stats(c *gin.Context) {
	count, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Stats failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total_chunks": count})
}

// statusForError maps request-shaped failures to 400. A fetch failure is the
// caller's URL being unreachable, not a service fault, so it is 400 too.
// Everything else is 500.
func statusForError(err error) int {
	var fetchErr *fetcher.FetchError
	if errors.Is(err, fetcher.ErrInvalidURL) ||
		errors.Is(err, service.ErrEmptyQuery) ||
		errors.Is(err, service.ErrEmptyURL) ||
		errors.As(err, &fetchErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
