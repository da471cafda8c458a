// Package main is the entry point for the page search service
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/developer-mesh/pagesearch/internal/api"
	"github.com/developer-mesh/pagesearch/internal/cache"
	"github.com/developer-mesh/pagesearch/internal/chunker"
	"github.com/developer-mesh/pagesearch/internal/config"
	"github.com/developer-mesh/pagesearch/internal/embedding"
	"github.com/developer-mesh/pagesearch/internal/fetcher"
	"github.com/developer-mesh/pagesearch/internal/metrics"
	"github.com/developer-mesh/pagesearch/internal/observability"
	"github.com/developer-mesh/pagesearch/internal/service"
	"github.com/developer-mesh/pagesearch/internal/store"
	"github.com/developer-mesh/pagesearch/internal/tokenizer"
)

var (
	// Version information (set via ldflags during build)
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Page Search\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
			version, buildTime, gitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLoggerWithLevel("pagesearch", cfg.Service.LogLevel)
	logger.Info("Starting page search service", map[string]interface{}{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	})

	if *configPath != "" {
		logger.Info("Using custom config path", map[string]interface{}{
			"path": *configPath,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	chunkStore := store.NewChunkStore(db, cfg.Embedding.Dimensions, logger)
	if err := chunkStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	serviceMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	embedder := buildEmbedder(cfg, logger)

	counter := tokenizer.NewHeuristic()
	structural := chunker.NewStructuralChunker(counter, logger)
	structural.MaxTokens = cfg.Chunking.MaxTokens
	structural.MinTextLen = cfg.Chunking.MinTextLen
	structural.MaxBodyChars = cfg.Chunking.MaxBodyChars

	pageFetcher := fetcher.New(fetcher.Config{
		Timeout:           cfg.Fetcher.Timeout,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		BurstSize:         cfg.Fetcher.BurstSize,
	}, logger)

	searchService := service.NewSearchService(
		pageFetcher, structural, embedder, chunkStore, serviceMetrics, logger,
	)
	searchService.DefaultLimit = cfg.Search.DefaultLimit

	apiServer := startAPIServer(cfg, searchService, logger)
	metricsServer := startMetricsServer(cfg, db, logger)

	sig := <-sigChan
	logger.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	logger.Info("Starting graceful shutdown", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown API server", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown metrics server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cancel()
	logger.Info("Shutdown complete", nil)
}

// buildEmbedder creates the embedding provider, wrapped in a Redis cache
// when Redis is enabled.
func buildEmbedder(cfg *config.Config, logger observability.Logger) embedding.Provider {
	provider := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		BurstSize:         cfg.Embedding.BurstSize,
	}, logger)

	if !cfg.Redis.Enabled {
		return provider
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Address,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.Database,
		DialTimeout: cfg.Redis.DialTimeout,
		PoolSize:    cfg.Redis.PoolSize,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, embedding cache disabled", map[string]interface{}{
			"address": cfg.Redis.Address,
			"error":   err.Error(),
		})
		return provider
	}

	redisCache := cache.NewRedisCache(redisClient, cache.CacheConfig{
		Enabled:    true,
		DefaultTTL: cfg.Redis.CacheTTL,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	}, logger)

	logger.Info("Embedding cache enabled", map[string]interface{}{
		"address": cfg.Redis.Address,
	})
	return embedding.NewCachedProvider(provider, cfg.Embedding.Model, redisCache, logger)
}

// connectDatabase establishes a database connection with retry logic
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*sqlx.DB, error) {
	maxRetries := 10
	baseDelay := 1 * time.Second

	logger.Info("Connecting to database", map[string]interface{}{
		"host":     cfg.Host,
		"database": cfg.Database,
	})

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err == nil {
			logger.Info("Database connection established", nil)
			db.SetMaxOpenConns(cfg.MaxConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			return db, nil
		}
		lastErr = err

		if i < maxRetries-1 {
			delay := baseDelay * (1 << uint(i))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}

			logger.Warn("Database connection failed, retrying...", map[string]interface{}{
				"attempt":      i + 1,
				"max_attempts": maxRetries,
				"delay":        delay.String(),
				"error":        err.Error(),
			})

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

// startAPIServer starts the HTTP API server
func startAPIServer(cfg *config.Config, svc *service.SearchService, logger observability.Logger) *http.Server {
	if cfg.Service.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger(logger))
	router.Use(api.CORSMiddleware(cfg.Service.CORSOrigins))
	router.Use(api.RateLimiter(cfg.Service.RequestsPerSecond, cfg.Service.RequestBurst))

	handler := api.NewHandler(svc, logger)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting API server", map[string]interface{}{
			"port": cfg.Service.Port,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}

// newMetricsMux builds the handler for the metrics port: /health pings the
// database, /ready reports the process is up, /metrics serves Prometheus.
func newMetricsMux(db *sqlx.DB) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "healthy")
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ready")
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// startMetricsServer starts the health and Prometheus metrics endpoint
func startMetricsServer(cfg *config.Config, db *sqlx.DB, logger observability.Logger) *http.Server {
	mux := newMetricsMux(db)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", map[string]interface{}{
			"port": cfg.Service.MetricsPort,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return server
}
