// Package config provides configuration management for the prior
// authorization engine. This file contains the lightweight configuration for
// standalone CLI operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no PostgreSQL or Redis and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files (audit db)

	// Rule document
	RulesPath string // Path to the payer rules YAML document

	// Collaborator endpoints
	ClassifierURL string // Zero-shot classifier endpoint
	GeneratorURL  string // Text generation endpoint
	StatusURL     string // Payer submission status endpoint

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".priorauth")

	return &LiteConfig{
		DataDir:       dataDir,
		RulesPath:     "config/payer_rules.yaml",
		ClassifierURL: "http://localhost:8081/classify",
		GeneratorURL:  "http://localhost:8082/generate",
		StatusURL:     "http://localhost:8083/status",
		CacheMaxItems: 1024,
		CacheTTL:      time.Hour,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PRIORAUTH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PRIORAUTH_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("PRIORAUTH_CLASSIFIER_URL"); v != "" {
		cfg.ClassifierURL = v
	}
	if v := os.Getenv("PRIORAUTH_GENERATOR_URL"); v != "" {
		cfg.GeneratorURL = v
	}
	if v := os.Getenv("PRIORAUTH_STATUS_URL"); v != "" {
		cfg.StatusURL = v
	}
	if v := os.Getenv("PRIORAUTH_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PRIORAUTH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("PRIORAUTH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PRIORAUTH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// AuditDBPath returns the path to the audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
