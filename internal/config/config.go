// Package config loads the engine's runtime configuration from
// environment variables, in the teacher's getEnv*/Validate idiom.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/keyrange"
)

// Config holds all runtime configuration for the query engine.
type Config struct {
	// Catalog and output locations
	CatalogPath string
	OutputDir   string

	// Partitioning thresholds, per spec.md §4.4–§4.6
	MaxOneRequest int
	SegmentSize   int
	KeyUpperBound int

	// Concurrency and pacing
	WorkerPoolSize          int
	ProbeRequestsPerSecond  float64
	ExportRequestsPerSecond float64
	RequestTimeout          time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying the same
// defaults a standalone run of the engine would need.
func Load() (*Config, error) {
	cfg := &Config{
		CatalogPath: getEnv("CAROL_CATALOG_PATH", "possible_values.json"),
		OutputDir:   getEnv("CAROL_OUTPUT_DIR", "./output"),

		MaxOneRequest: getEnvAsInt("CAROL_MAX_ONE_REQUEST", 3500),
		SegmentSize:   getEnvAsInt("CAROL_SEGMENT_SIZE", keyrange.DefaultSegmentSize),
		KeyUpperBound: getEnvAsInt("CAROL_KEY_UPPER_BOUND", keyrange.UpperBound),

		WorkerPoolSize:          getEnvAsInt("CAROL_WORKER_POOL_SIZE", runtime.NumCPU()),
		ProbeRequestsPerSecond:  getEnvAsFloat("CAROL_PROBE_RPS", 0.5),
		ExportRequestsPerSecond: getEnvAsFloat("CAROL_EXPORT_RPS", 0.2),
		RequestTimeout:          getEnvAsDuration("CAROL_REQUEST_TIMEOUT", 60*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded configuration is internally consistent.
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("CAROL_CATALOG_PATH is required")
	}
	if c.MaxOneRequest <= 0 {
		return fmt.Errorf("CAROL_MAX_ONE_REQUEST must be positive")
	}
	if c.SegmentSize <= 0 {
		return fmt.Errorf("CAROL_SEGMENT_SIZE must be positive")
	}
	if c.KeyUpperBound <= 0 {
		return fmt.Errorf("CAROL_KEY_UPPER_BOUND must be positive")
	}
	if c.ProbeRequestsPerSecond <= 0 || c.ExportRequestsPerSecond <= 0 {
		return fmt.Errorf("CAROL_PROBE_RPS and CAROL_EXPORT_RPS must be positive")
	}
	return nil
}

// Helper functions for reading environment variables.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
