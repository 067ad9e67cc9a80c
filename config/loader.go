package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "GLINAX_"

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty no file is read), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays GLINAX_-prefixed environment variables.
func applyEnv(cfg *Config) {
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)

	envString("STORE_BACKEND", &cfg.Store.Backend)

	envInt("CACHE_MEMORY_CAPACITY", &cfg.Cache.MemoryCapacity)
	envDuration("CACHE_MEMORY_TTL", &cfg.Cache.MemoryTTL)
	envDuration("CACHE_REAP_INTERVAL", &cfg.Cache.ReapInterval)
	envDuration("CACHE_STORE_TIMEOUT", &cfg.Cache.StoreTimeout)
	envInt("CACHE_STATS_TOP_N", &cfg.Cache.StatsTopN)
	envFloat("POLICY_MIN_CONFIDENCE", &cfg.Cache.Policy.MinConfidence)
	envInt("POLICY_MIN_QUERY_LENGTH", &cfg.Cache.Policy.MinQueryLength)

	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envDuration("REDIS_TTL", &cfg.Redis.TTL)
	envString("REDIS_KEY_PREFIX", &cfg.Redis.KeyPrefix)

	envString("MONGO_URI", &cfg.Mongo.URI)
	envString("MONGO_DATABASE", &cfg.Mongo.Database)
	envString("MONGO_COLLECTION", &cfg.Mongo.Collection)
	envDuration("MONGO_TTL", &cfg.Mongo.TTL)

	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
