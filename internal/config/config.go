// Package config loads runtime settings the way the teacher's
// config/config.go does: godotenv for local .env files, viper for
// defaults/config-file/env-var layering, with an env-var prefix scoped to
// this service instead of the teacher's dotted global keys.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration (spec §6).
type Config struct {
	ServerHost string
	ServerPort string

	CatalogPath        string
	PersistentCacheDSN string

	ReleaseAPIBaseURL string
	ReleaseAPIToken   string
	RateLimitRPM      int
	RateLimitConcurrency int
	RateLimitMaxRetries  int

	CacheTrackTTL   time.Duration
	CacheTrackCap   int
	CacheReleaseTTL time.Duration
	CacheReleaseCap int
	CacheSearchTTL  time.Duration
	CacheSearchCap  int

	LogLevel   string
	AdminToken string

	LookupConcurrency int
}

// Load reads .env (if present), applies defaults, then overlays
// config.yaml and LOOKUP_-prefixed environment variables, in that
// precedence order — matching the teacher's AutomaticEnv + SetEnvKeyReplacer
// pattern, generalized to one env-var prefix per spec §6.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found or error loading it; using defaults and environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("LOOKUP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("catalog.path", "library.db")
	v.SetDefault("persistent_cache.dsn", "")
	v.SetDefault("rate_limit.rpm", 50)
	v.SetDefault("rate_limit.concurrency", 5)
	v.SetDefault("rate_limit.max_retries", 2)
	v.SetDefault("cache.track_ttl", "1h")
	v.SetDefault("cache.track_cap", 1000)
	v.SetDefault("cache.release_ttl", "4h")
	v.SetDefault("cache.release_cap", 500)
	v.SetDefault("cache.search_ttl", "1h")
	v.SetDefault("cache.search_cap", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("lookup.concurrency", 5)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		log.Println("config file not found, using defaults and environment variables")
	}

	if !v.IsSet("release_api.token") {
		return nil, fmt.Errorf("required configuration LOOKUP_RELEASE_API_TOKEN is not set")
	}

	trackTTL, err := time.ParseDuration(v.GetString("cache.track_ttl"))
	if err != nil {
		return nil, fmt.Errorf("cache.track_ttl: %w", err)
	}
	releaseTTL, err := time.ParseDuration(v.GetString("cache.release_ttl"))
	if err != nil {
		return nil, fmt.Errorf("cache.release_ttl: %w", err)
	}
	searchTTL, err := time.ParseDuration(v.GetString("cache.search_ttl"))
	if err != nil {
		return nil, fmt.Errorf("cache.search_ttl: %w", err)
	}

	return &Config{
		ServerHost:           v.GetString("server.host"),
		ServerPort:           v.GetString("server.port"),
		CatalogPath:          v.GetString("catalog.path"),
		PersistentCacheDSN:   v.GetString("persistent_cache.dsn"),
		ReleaseAPIBaseURL:    v.GetString("release_api.base_url"),
		ReleaseAPIToken:      v.GetString("release_api.token"),
		RateLimitRPM:         v.GetInt("rate_limit.rpm"),
		RateLimitConcurrency: v.GetInt("rate_limit.concurrency"),
		RateLimitMaxRetries:  v.GetInt("rate_limit.max_retries"),
		CacheTrackTTL:        trackTTL,
		CacheTrackCap:        v.GetInt("cache.track_cap"),
		CacheReleaseTTL:      releaseTTL,
		CacheReleaseCap:      v.GetInt("cache.release_cap"),
		CacheSearchTTL:       searchTTL,
		CacheSearchCap:       v.GetInt("cache.search_cap"),
		LogLevel:             v.GetString("log.level"),
		AdminToken:           v.GetString("admin.token"),
		LookupConcurrency:    v.GetInt("lookup.concurrency"),
	}, nil
}
