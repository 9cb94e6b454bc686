package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/semcache/semcache/cache"
	"github.com/semcache/semcache/utils/env"
)

// Config is the full daemon configuration. Durations are strings in the YAML
// file ("1h", "90s") and parsed when the cache configuration is built.
type Config struct {
	// Port to listen on for the admin and metrics endpoints. E.g., 8080
	Port int `yaml:"port"`

	// Path where the Prometheus handler is mounted. E.g., /metrics
	MetricsPath string `yaml:"metrics_path"`

	// Maximum number of live cache entries. E.g., 100
	MaxEntries int `yaml:"max_entries"`

	// Maximum total cache memory in bytes. E.g., 52428800
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`

	// TTL for entries stored without their own. E.g., 1h
	DefaultTTL string `yaml:"default_ttl"`

	// Minimum cosine similarity for FindSimilar. E.g., 0.85
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Cadence of the expired-entry sweep. E.g., 1m
	SweepInterval string `yaml:"sweep_interval"`

	// Cadence of the hit-rate recomputation. E.g., 5m
	EfficiencyInterval string `yaml:"efficiency_interval"`
}

func defaults() Config {
	cacheDefaults := cache.DefaultConfig()
	return Config{
		Port:                8080,
		MetricsPath:         "/metrics",
		MaxEntries:          cacheDefaults.MaxEntries,
		MaxMemoryBytes:      cacheDefaults.MaxMemoryBytes,
		DefaultTTL:          cacheDefaults.DefaultTTL.String(),
		SimilarityThreshold: cacheDefaults.SimilarityThreshold,
		SweepInterval:       cacheDefaults.SweepInterval.String(),
		EfficiencyInterval:  cacheDefaults.EfficiencyInterval.String(),
	}
}

// Load reads the configuration file at path, fills unset fields with
// defaults, and applies SEMCACHE_* environment overrides on top. An empty
// path skips the file and uses defaults plus the environment.
func Load(path string, logger *zap.SugaredLogger) (*Config, error) {
	config := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	config.Port = env.OptionalIntVariable("SEMCACHE_PORT", config.Port)
	config.MetricsPath = env.OptionalStringVariable("SEMCACHE_METRICS_PATH", config.MetricsPath)
	config.MaxEntries = env.OptionalIntVariable("SEMCACHE_MAX_ENTRIES", config.MaxEntries)
	config.MaxMemoryBytes = env.OptionalInt64Variable("SEMCACHE_MAX_MEMORY_BYTES", config.MaxMemoryBytes)
	config.DefaultTTL = env.OptionalStringVariable("SEMCACHE_DEFAULT_TTL", config.DefaultTTL)
	config.SimilarityThreshold = env.OptionalFloatVariable("SEMCACHE_SIMILARITY_THRESHOLD", config.SimilarityThreshold)
	config.SweepInterval = env.OptionalStringVariable("SEMCACHE_SWEEP_INTERVAL", config.SweepInterval)
	config.EfficiencyInterval = env.OptionalStringVariable("SEMCACHE_EFFICIENCY_INTERVAL", config.EfficiencyInterval)

	logger.Infow("Loaded configuration",
		"path", path,
		"port", config.Port,
		"max_entries", config.MaxEntries,
		"max_memory_bytes", config.MaxMemoryBytes)
	return &config, nil
}

// CacheConfig converts the loaded settings into the cache's configuration.
// Duration strings that fail to parse are reported here, before the cache is
// constructed.
func (c *Config) CacheConfig() (cache.Config, error) {
	defaultTTL, err := time.ParseDuration(c.DefaultTTL)
	if err != nil {
		return cache.Config{}, fmt.Errorf("config: invalid default_ttl %q: %w", c.DefaultTTL, err)
	}
	sweepInterval, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return cache.Config{}, fmt.Errorf("config: invalid sweep_interval %q: %w", c.SweepInterval, err)
	}
	efficiencyInterval, err := time.ParseDuration(c.EfficiencyInterval)
	if err != nil {
		return cache.Config{}, fmt.Errorf("config: invalid efficiency_interval %q: %w", c.EfficiencyInterval, err)
	}

	return cache.Config{
		MaxEntries:          c.MaxEntries,
		MaxMemoryBytes:      c.MaxMemoryBytes,
		DefaultTTL:          defaultTTL,
		SimilarityThreshold: c.SimilarityThreshold,
		SweepInterval:       sweepInterval,
		EfficiencyInterval:  efficiencyInterval,
	}, nil
}
