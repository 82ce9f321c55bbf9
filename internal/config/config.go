// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config defines the application configuration and its loading.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, optional YAML config file,
// built-in defaults. See koanf.go for the loader.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// AuthType enumerates the supported platform authentication methods.
// The method is selected once at construction; invalid credential
// combinations fail at config load, not per-request.
type AuthType string

const (
	// AuthNone disables authentication (public read-only endpoints).
	AuthNone AuthType = "none"
	// AuthBasic uses HTTP basic auth with username/password.
	AuthBasic AuthType = "basic"
	// AuthBearer sends a static bearer token.
	AuthBearer AuthType = "bearer"
	// AuthApplicationPassword uses the platform's application passwords,
	// transmitted as HTTP basic auth with username/app-password.
	AuthApplicationPassword AuthType = "application_password"
)

// CacheBackend enumerates the cache backend selection modes.
type CacheBackend string

const (
	// BackendAuto probes the distributed store and falls back to local.
	BackendAuto CacheBackend = "auto"
	// BackendDistributed forces the NATS JetStream KV backend.
	BackendDistributed CacheBackend = "distributed"
	// BackendLocal forces the embedded BadgerDB backend.
	BackendLocal CacheBackend = "local"
)

// Config is the root application configuration.
type Config struct {
	Platform   PlatformConfig   `koanf:"platform"`
	Cache      CacheConfig      `koanf:"cache"`
	Feedback   FeedbackConfig   `koanf:"feedback"`
	Sync       SyncConfig       `koanf:"sync"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// PlatformConfig configures the external content platform API client.
type PlatformConfig struct {
	// BaseURL is the platform root URL (e.g. https://content.example.com).
	BaseURL string `koanf:"base_url"`

	// AuthType selects the authentication method.
	AuthType AuthType `koanf:"auth_type"`

	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	Token       string `koanf:"token"`
	AppPassword string `koanf:"app_password"`

	// RateLimit bounds outbound requests per minute. Callers that hit the
	// bound are suspended until the next refill, never dropped.
	RateLimit int `koanf:"rate_limit"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`

	// BatchSize is the page size used for pagination (platform max: 100).
	BatchSize int `koanf:"batch_size"`

	// RetryAttempts bounds retries for transient failures.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryDelay is the initial backoff delay; it doubles per attempt with
	// jitter applied.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// CacheConfig configures the cache layer. TTLs are per entity kind and are
// deployment-time overridable; they are defaults, not hard-coded constants.
type CacheConfig struct {
	// Backend selects the store: auto, distributed (NATS KV) or local
	// (BadgerDB). Auto probes NATS and falls back to local.
	Backend CacheBackend `koanf:"backend"`

	// NATSURL is the NATS server URL for the distributed backend.
	NATSURL string `koanf:"nats_url"`

	// Bucket is the JetStream KV bucket name.
	Bucket string `koanf:"bucket"`

	// Path is the BadgerDB directory for the local backend.
	Path string `koanf:"path"`

	ProfileTTL  time.Duration `koanf:"profile_ttl"`
	ResourceTTL time.Duration `koanf:"resource_ttl"`
	TaxonomyTTL time.Duration `koanf:"taxonomy_ttl"`
	SearchTTL   time.Duration `koanf:"search_ttl"`
}

// FeedbackConfig configures the durable feedback store.
type FeedbackConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`
}

// SyncConfig configures the background synchronization scheduler.
type SyncConfig struct {
	// Interval between periodic sync runs.
	Interval time.Duration `koanf:"interval"`

	// OnStartup triggers a full sync immediately when the scheduler starts.
	OnStartup bool `koanf:"on_startup"`
}

// ScoringConfig configures the scoring engine. Weights are independent; they
// are not required to sum to 1 but typically do for interpretability.
type ScoringConfig struct {
	ContentWeight    float64 `koanf:"content_weight"`
	CollabWeight     float64 `koanf:"collab_weight"`
	PopularityWeight float64 `koanf:"popularity_weight"`
	EmbeddingWeight  float64 `koanf:"embedding_weight"`

	// TopN is the default number of recommendations returned.
	TopN int `koanf:"top_n"`

	// VectorWidth is the feature-hashing vector width.
	VectorWidth int `koanf:"vector_width"`

	// RatingBoost is added to the popularity score of resources whose
	// average rating is above the median.
	RatingBoost float64 `koanf:"rating_boost"`

	// RequestTimeout bounds a single recommendation computation.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// EmbeddingsConfig configures the optional semantic embedding backend. The
// scoring engine skips the embedding term when URL is empty or the embedding
// weight is zero.
type EmbeddingsConfig struct {
	// URL is the embedding service endpoint (OpenAI-compatible
	// /v1/embeddings). Empty disables the embedding scorer.
	URL string `koanf:"url"`

	// APIKey is an optional bearer token for the embedding service.
	APIKey string `koanf:"api_key"`

	// Model is the embedding model identifier.
	Model string `koanf:"model"`

	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// RequestTimeout is the server-side request deadline.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimitReqs / RateLimitWindow bound inbound requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks that required configuration is present and consistent.
// Invalid auth combinations fail fast here, at startup.
func (c *Config) Validate() error {
	if err := c.validatePlatform(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validatePlatform() error {
	p := &c.Platform

	if p.BaseURL == "" {
		return fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PLATFORM_BASE_URL is not a valid http(s) URL: %q", p.BaseURL)
	}

	switch p.AuthType {
	case AuthNone:
	case AuthBasic:
		if p.Username == "" || p.Password == "" {
			return fmt.Errorf("PLATFORM_USERNAME and PLATFORM_PASSWORD are required for auth_type=basic")
		}
	case AuthBearer:
		if p.Token == "" {
			return fmt.Errorf("PLATFORM_TOKEN is required for auth_type=bearer")
		}
	case AuthApplicationPassword:
		if p.Username == "" || p.AppPassword == "" {
			return fmt.Errorf("PLATFORM_USERNAME and PLATFORM_APP_PASSWORD are required for auth_type=application_password")
		}
	default:
		return fmt.Errorf("PLATFORM_AUTH_TYPE must be one of none|basic|bearer|application_password, got %q", p.AuthType)
	}

	if p.RateLimit <= 0 {
		return fmt.Errorf("PLATFORM_RATE_LIMIT must be positive, got %d", p.RateLimit)
	}
	if p.BatchSize <= 0 || p.BatchSize > 100 {
		return fmt.Errorf("PLATFORM_BATCH_SIZE must be in 1..100, got %d", p.BatchSize)
	}
	if p.RetryAttempts < 0 {
		return fmt.Errorf("PLATFORM_RETRY_ATTEMPTS must not be negative, got %d", p.RetryAttempts)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case BackendAuto, BackendLocal:
	case BackendDistributed:
		if c.Cache.NATSURL == "" {
			return fmt.Errorf("CACHE_NATS_URL is required for backend=distributed")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of auto|distributed|local, got %q", c.Cache.Backend)
	}
	for name, ttl := range map[string]time.Duration{
		"CACHE_PROFILE_TTL":  c.Cache.ProfileTTL,
		"CACHE_RESOURCE_TTL": c.Cache.ResourceTTL,
		"CACHE_TAXONOMY_TTL": c.Cache.TaxonomyTTL,
		"CACHE_SEARCH_TTL":   c.Cache.SearchTTL,
	} {
		if ttl < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateScoring() error {
	s := &c.Scoring
	for name, w := range map[string]float64{
		"SCORING_CONTENT_WEIGHT":    s.ContentWeight,
		"SCORING_COLLAB_WEIGHT":     s.CollabWeight,
		"SCORING_POPULARITY_WEIGHT": s.PopularityWeight,
		"SCORING_EMBEDDING_WEIGHT":  s.EmbeddingWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if s.TopN <= 0 {
		return fmt.Errorf("SCORING_TOP_N must be positive, got %d", s.TopN)
	}
	if s.VectorWidth <= 0 {
		return fmt.Errorf("SCORING_VECTOR_WIDTH must be positive, got %d", s.VectorWidth)
	}
	if s.EmbeddingWeight > 0 && c.Embeddings.URL == "" {
		return fmt.Errorf("EMBEDDINGS_URL is required when SCORING_EMBEDDING_WEIGHT > 0")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be in 1..65535, got %d", c.Server.Port)
	}
	return nil
}
