// Package config loads the answer-cache service configuration.
// Precedence: built-in defaults, then the YAML file, then environment
// variables with the GLINAX_ prefix.
package config

import (
	"fmt"

	"github.com/glinax/answercache/cache"
)

// Backend selects the persistent tier implementation.
const (
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Config is the complete service configuration.
type Config struct {
	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`

	// Cache tunes the manager and memory tier.
	Cache cache.Config `yaml:"cache"`

	// Store selects the persistent tier backend.
	Store StoreConfig `yaml:"store"`

	// Redis configures the Redis backend.
	Redis cache.RedisConfig `yaml:"redis"`

	// Mongo configures the MongoDB backend.
	Mongo cache.MongoConfig `yaml:"mongo"`

	// Metrics configures the Prometheus collector.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`

	// Format: json, console
	Format string `yaml:"format"`
}

// StoreConfig selects the persistent tier.
type StoreConfig struct {
	// Backend: redis, mongo, none
	Backend string `yaml:"backend"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled turns the Prometheus collector on.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: cache.DefaultConfig(),
		Store: StoreConfig{
			Backend: BackendRedis,
		},
		Redis:   cache.DefaultRedisConfig(),
		Mongo:   cache.DefaultMongoConfig(),
		Metrics: MetricsConfig{Enabled: true, Namespace: "glinax"},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendRedis, BackendMongo, BackendNone:
	default:
		return fmt.Errorf("invalid store backend: %q", c.Store.Backend)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}

	if c.Cache.MemoryCapacity < 0 {
		return fmt.Errorf("memory capacity must be positive: %d", c.Cache.MemoryCapacity)
	}
	if c.Cache.Policy.MinConfidence < 0 || c.Cache.Policy.MinConfidence > 1 {
		return fmt.Errorf("policy min confidence must be in [0,1]: %f", c.Cache.Policy.MinConfidence)
	}
	return nil
}
