// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/visey-recommender/config.yaml",
	"/etc/visey-recommender/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first and are overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:       "",
			AuthType:      AuthNone,
			RateLimit:     60, // requests per minute
			Timeout:       30 * time.Second,
			BatchSize:     100,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Cache: CacheConfig{
			Backend:     BackendAuto,
			NATSURL:     "nats://127.0.0.1:4222",
			Bucket:      "recommender-cache",
			Path:        "/data/cache",
			ProfileTTL:  time.Hour,
			ResourceTTL: 30 * time.Minute,
			TaxonomyTTL: 2 * time.Hour,
			SearchTTL:   15 * time.Minute,
		},
		Feedback: FeedbackConfig{
			Path: "/data/feedback.db",
		},
		Sync: SyncConfig{
			Interval:  30 * time.Minute,
			OnStartup: true,
		},
		Scoring: ScoringConfig{
			ContentWeight:    0.6,
			CollabWeight:     0.3,
			PopularityWeight: 0.1,
			EmbeddingWeight:  0.0, // opt-in, requires an embedding backend
			TopN:             10,
			VectorWidth:      4096,
			RatingBoost:      0.5,
			RequestTimeout:   10 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			URL:     "",
			Model:   "text-embedding-3-small",
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// PLATFORM_BASE_URL -> platform.base_url, LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env strings become slices
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns
// the first file found, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables map to empty string and are skipped, so random
// environment variables never pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Platform client
		"platform_base_url":       "platform.base_url",
		"platform_auth_type":      "platform.auth_type",
		"platform_username":       "platform.username",
		"platform_password":       "platform.password",
		"platform_token":          "platform.token",
		"platform_app_password":   "platform.app_password",
		"platform_rate_limit":     "platform.rate_limit",
		"platform_timeout":        "platform.timeout",
		"platform_batch_size":     "platform.batch_size",
		"platform_retry_attempts": "platform.retry_attempts",
		"platform_retry_delay":    "platform.retry_delay",

		// Cache
		"cache_backend":      "cache.backend",
		"cache_nats_url":     "cache.nats_url",
		"cache_bucket":       "cache.bucket",
		"cache_path":         "cache.path",
		"cache_profile_ttl":  "cache.profile_ttl",
		"cache_resource_ttl": "cache.resource_ttl",
		"cache_taxonomy_ttl": "cache.taxonomy_ttl",
		"cache_search_ttl":   "cache.search_ttl",

		// Feedback store
		"feedback_path": "feedback.path",

		// Sync scheduler
		"sync_interval":   "sync.interval",
		"sync_on_startup": "sync.on_startup",

		// Scoring engine
		"scoring_content_weight":    "scoring.content_weight",
		"scoring_collab_weight":     "scoring.collab_weight",
		"scoring_popularity_weight": "scoring.popularity_weight",
		"scoring_embedding_weight":  "scoring.embedding_weight",
		"scoring_top_n":             "scoring.top_n",
		"scoring_vector_width":      "scoring.vector_width",
		"scoring_rating_boost":      "scoring.rating_boost",
		"scoring_request_timeout":   "scoring.request_timeout",

		// Embeddings backend
		"embeddings_url":     "embeddings.url",
		"embeddings_api_key": "embeddings.api_key",
		"embeddings_model":   "embeddings.model",
		"embeddings_timeout": "embeddings.timeout",

		// HTTP server
		"server_host":              "server.host",
		"server_port":              "server.port",
		"server_request_timeout":   "server.request_timeout",
		"server_rate_limit_reqs":   "server.rate_limit_reqs",
		"server_rate_limit_window": "server.rate_limit_window",
		"server_cors_origins":      "server.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
