package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/developer-mesh/pagesearch/internal/cache"
	"github.com/developer-mesh/pagesearch/internal/observability"
)

// embeddingTTL bounds how long cached vectors survive a model change.
const embeddingTTL = 7 * 24 * time.Hour

// CachedProvider wraps a Provider with a Redis cache keyed by model and
// content hash. Cache failures fall through to the underlying provider.
type CachedProvider struct {
	provider Provider
	model    string
	cache    *cache.RedisCache
	logger   observability.Logger
}

// NewCachedProvider creates a caching decorator around provider
func NewCachedProvider(provider Provider, model string, redisCache *cache.RedisCache, logger observability.Logger) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		model:    model,
		cache:    redisCache,
		logger:   logger.WithPrefix("emb-cache"),
	}
}

// Embed returns a cached vector when available, otherwise delegates to the
// underlying provider and stores the result.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	var cached []float32
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil && len(cached) == c.provider.Dimensions() {
		c.logger.Debug("Embedding cache hit", map[string]interface{}{
			"key": key,
		})
		return cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Embedding cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	vector, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, vector, embeddingTTL); err != nil {
		c.logger.Warn("Embedding cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	return vector, nil
}

// Dimensions returns the underlying provider's vector size
func (c *CachedProvider) Dimensions() int {
	return c.provider.Dimensions()
}

func (c *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + ":" + text))
	return fmt.Sprintf("emb:%s", hex.EncodeToString(sum[:]))
}
