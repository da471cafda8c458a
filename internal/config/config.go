// Package config handles configuration for the page search service
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the complete service configuration
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Search    SearchConfig    `mapstructure:"search"`
}

// ServiceConfig contains service-level configuration
type ServiceConfig struct {
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	MetricsPort       int           `mapstructure:"metrics_port" validate:"min=1,max=65535"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	RequestBurst      int           `mapstructure:"request_burst" validate:"min=1"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxConns     int    `mapstructure:"max_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// FetcherConfig contains page fetching settings
type FetcherConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
}

// EmbeddingConfig contains embedding generation settings
type EmbeddingConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	Model             string        `mapstructure:"model" validate:"required"`
	Dimensions        int           `mapstructure:"dimensions" validate:"min=1"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
}

// ChunkingConfig contains page chunking settings
type ChunkingConfig struct {
	MaxTokens    int `mapstructure:"max_tokens" validate:"min=1"`
	MinTextLen   int `mapstructure:"min_text_len" validate:"min=0"`
	MaxBodyChars int `mapstructure:"max_body_chars" validate:"min=1"`
}

// SearchConfig contains search settings
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	viper.SetConfigName("pagesearch")
	viper.SetConfigType("yaml")

	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")

	setDefaults()
	bindEnvVars()

	// Missing config file is fine, defaults and env vars apply.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Service defaults
	viper.SetDefault("service.port", 8080)
	viper.SetDefault("service.metrics_port", 9090)
	viper.SetDefault("service.shutdown_timeout", "30s")
	viper.SetDefault("service.log_level", "info")
	viper.SetDefault("service.cors_origins", []string{"*"})
	viper.SetDefault("service.requests_per_second", 50.0)
	viper.SetDefault("service.request_burst", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "pagesearch")
	viper.SetDefault("database.username", "pagesearch")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.cache_ttl", "24h")
	viper.SetDefault("redis.key_prefix", "pagesearch:")

	// Fetcher defaults
	viper.SetDefault("fetcher.timeout", "15s")
	viper.SetDefault("fetcher.requests_per_second", 2.0)
	viper.SetDefault("fetcher.burst_size", 1)

	// Embedding defaults
	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("embedding.requests_per_second", 10.0)
	viper.SetDefault("embedding.burst_size", 5)

	// Chunking defaults
	viper.SetDefault("chunking.max_tokens", 500)
	viper.SetDefault("chunking.min_text_len", 15)
	viper.SetDefault("chunking.max_body_chars", 5000)

	// Search defaults
	viper.SetDefault("search.default_limit", 10)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.AutomaticEnv()

	// Service bindings
	_ = viper.BindEnv("service.port", "PAGESEARCH_PORT")
	_ = viper.BindEnv("service.metrics_port", "PAGESEARCH_METRICS_PORT")
	_ = viper.BindEnv("service.log_level", "LOG_LEVEL")

	// Database bindings
	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.database", "DATABASE_NAME")
	_ = viper.BindEnv("database.username", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	// Redis bindings
	_ = viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = viper.BindEnv("redis.address", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Embedding bindings
	_ = viper.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	_ = viper.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	_ = viper.BindEnv("embedding.model", "EMBEDDING_MODEL")
	_ = viper.BindEnv("embedding.dimensions", "EMBEDDING_DIMENSIONS")
}

// validate validates the configuration against the struct tags
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
