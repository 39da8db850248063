// Package config loads the full MDM configuration surface: entity
// sources, field comparison rules, blocking strategy, match/review
// thresholds, trust weights, survivorship rules, plus the ambient
// database/embedding/vectorindex/ratelimit/rest_api/logging sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration surface.
type Config struct {
	Profile      string                          `mapstructure:"profile"`
	Sources      map[string]SourceConfig         `mapstructure:"sources"`
	Fields       map[string]FieldConfig          `mapstructure:"fields"`
	Blocking     BlockingConfig                  `mapstructure:"blocking"`
	Thresholds   ThresholdsConfig                `mapstructure:"thresholds"`
	Trust        TrustConfig                     `mapstructure:"trust"`
	Survivorship map[string]SurvivorshipConfig   `mapstructure:"survivorship"`
	Database     DatabaseConfig                  `mapstructure:"database"`
	Embedding    EmbeddingConfig                 `mapstructure:"embedding"`
	VectorIndex  VectorIndexConfig               `mapstructure:"vectorindex"`
	RateLimit    RateLimitConfig                 `mapstructure:"ratelimit"`
	RestAPI      RestAPIConfig                   `mapstructure:"rest_api"`
	Logging      LoggingConfig                   `mapstructure:"logging"`
}

// SourceConfig describes one entity source system's trust and
// per-field weight overrides.
type SourceConfig struct {
	Reliability     float64            `mapstructure:"reliability"`
	WeightOverrides map[string]float64 `mapstructure:"weight_overrides"`
}

// FieldConfig describes one attribute's comparison, preprocessing, and
// null-handling configuration.
type FieldConfig struct {
	Type             string         `mapstructure:"type"`
	Comparator       string         `mapstructure:"comparator"`
	ComparatorParams map[string]any `mapstructure:"comparator_params"`
	Weight           float64        `mapstructure:"weight"`
	MatchThreshold   float64        `mapstructure:"match_threshold"`
	NullPolicy       string         `mapstructure:"null_policy"`
	Preprocessors    []string       `mapstructure:"preprocessors"`
	Required         bool           `mapstructure:"required"`
}

// BlockingConfig configures the Blocker.
type BlockingConfig struct {
	Strategy     string   `mapstructure:"strategy"` // "standard", "sorted_neighborhood", "vector"
	Keys         []string `mapstructure:"keys"`
	Window       int      `mapstructure:"window"`
	TopK         int      `mapstructure:"top_k"`
	MaxBlockSize int      `mapstructure:"max_block_size"`
}

// ThresholdsConfig configures the Match Engine's verdict boundaries and
// the Cluster Builder's transitivity guard.
type ThresholdsConfig struct {
	Match                    float64 `mapstructure:"match"`
	Review                   float64 `mapstructure:"review"`
	TransitivityGuardEnabled bool    `mapstructure:"transitivity_guard_enabled"`
}

// TrustConfig configures the Trust Scorer's component weights and decay
//.
type TrustConfig struct {
	ComponentWeights ComponentWeights   `mapstructure:"component_weights"`
	HalfLifeDays     map[string]float64 `mapstructure:"half_life_days"` // per entity type
}

// ComponentWeights are the four weighted inputs to the overall trust
// score; they must sum to 1.
type ComponentWeights struct {
	Source       float64 `mapstructure:"source"`
	Completeness float64 `mapstructure:"completeness"`
	Timeliness   float64 `mapstructure:"timeliness"`
	Validity     float64 `mapstructure:"validity"`
}

// SurvivorshipConfig configures one field's survivorship strategy
//.
type SurvivorshipConfig struct {
	Strategy string         `mapstructure:"strategy"`
	Params   map[string]any `mapstructure:"params"`
}

// DatabaseConfig holds the Lineage Store's SQLite configuration.
type DatabaseConfig struct {
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// EmbeddingConfig configures the embedding provider used for vector
// blocking.
type EmbeddingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"` // "ollama"
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
}

// VectorIndexConfig configures the ANN backend.
type VectorIndexConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Provider  string `mapstructure:"provider"` // "qdrant" or "memory"
	URL       string `mapstructure:"url"`
	Dimension int    `mapstructure:"dimension"`
}

// RateLimitConfig throttles outbound calls to the embedding provider and
// ANN vector index.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	BurstSize         int  `mapstructure:"burst_size"`
}

// RestAPIConfig holds the inspect/health/metrics HTTP surface
// configuration.
type RestAPIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	CORS    bool   `mapstructure:"cors"`
}

// LoggingConfig holds structured-logging configuration (kept from the
// teacher).
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var validComparators = map[string]bool{
	"exact": true, "fuzzy": true, "phonetic": true, "numeric": true,
	"date": true, "address": true, "vector": true,
}

var validNullPolicies = map[string]bool{
	"treat_as_mismatch": true, "skip": true, "treat_nulls_equal": true,
}

var validBlockingStrategies = map[string]bool{
	"standard": true, "sorted_neighborhood": true, "vector": true,
}

var validSurvivorshipStrategies = map[string]bool{
	"most_trusted": true, "most_recent": true, "trusted_source_priority": true,
	"most_frequent": true, "longest": true, "shortest": true,
	"weighted_average": true, "custom": true,
}

// DefaultConfig returns a minimal, internally consistent configuration
// suitable for `mdmcore init` to write out as a starting point.
func DefaultConfig() *Config {
	configDir := defaultConfigDir()

	return &Config{
		Profile: "default",
		Sources: map[string]SourceConfig{},
		Fields:  map[string]FieldConfig{},
		Blocking: BlockingConfig{
			Strategy:     "standard",
			MaxBlockSize: 5000,
		},
		Thresholds: ThresholdsConfig{
			Match:                    0.85,
			Review:                   0.6,
			TransitivityGuardEnabled: true,
		},
		Trust: TrustConfig{
			ComponentWeights: ComponentWeights{Source: 0.25, Completeness: 0.25, Timeliness: 0.25, Validity: 0.25},
			HalfLifeDays:     map[string]float64{"default": 365},
		},
		Survivorship: map[string]SurvivorshipConfig{},
		Database: DatabaseConfig{
			Path:           filepath.Join(configDir, "lineage.db"),
			BackupInterval: 24 * time.Hour,
			MaxBackups:     7,
			AutoMigrate:    true,
		},
		Embedding: EmbeddingConfig{
			Enabled:  false,
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		VectorIndex: VectorIndexConfig{
			Enabled:   false,
			Provider:  "memory",
			URL:       "http://localhost:6333",
			Dimension: 768,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		RestAPI: RestAPIConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    3102,
			CORS:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mdmcore")
}

// Load reads configuration from config.yaml, searching ".", "~/.mdmcore",
// and "/etc/mdmcore" in order, falling back to DefaultConfig when no
// file is found.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath(defaultConfigDir())
	v.AddConfigPath("/etc/mdmcore")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("profile", def.Profile)
	v.SetDefault("blocking.strategy", def.Blocking.Strategy)
	v.SetDefault("blocking.max_block_size", def.Blocking.MaxBlockSize)
	v.SetDefault("thresholds.match", def.Thresholds.Match)
	v.SetDefault("thresholds.review", def.Thresholds.Review)
	v.SetDefault("thresholds.transitivity_guard_enabled", def.Thresholds.TransitivityGuardEnabled)
	v.SetDefault("trust.component_weights.source", def.Trust.ComponentWeights.Source)
	v.SetDefault("trust.component_weights.completeness", def.Trust.ComponentWeights.Completeness)
	v.SetDefault("trust.component_weights.timeliness", def.Trust.ComponentWeights.Timeliness)
	v.SetDefault("trust.component_weights.validity", def.Trust.ComponentWeights.Validity)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.backup_interval", def.Database.BackupInterval.String())
	v.SetDefault("database.max_backups", def.Database.MaxBackups)
	v.SetDefault("database.auto_migrate", def.Database.AutoMigrate)
	v.SetDefault("embedding.enabled", def.Embedding.Enabled)
	v.SetDefault("embedding.provider", def.Embedding.Provider)
	v.SetDefault("embedding.base_url", def.Embedding.BaseURL)
	v.SetDefault("embedding.model", def.Embedding.Model)
	v.SetDefault("vectorindex.enabled", def.VectorIndex.Enabled)
	v.SetDefault("vectorindex.provider", def.VectorIndex.Provider)
	v.SetDefault("vectorindex.url", def.VectorIndex.URL)
	v.SetDefault("vectorindex.dimension", def.VectorIndex.Dimension)
	v.SetDefault("ratelimit.enabled", def.RateLimit.Enabled)
	v.SetDefault("ratelimit.requests_per_second", def.RateLimit.RequestsPerSecond)
	v.SetDefault("ratelimit.burst_size", def.RateLimit.BurstSize)
	v.SetDefault("rest_api.enabled", def.RestAPI.Enabled)
	v.SetDefault("rest_api.host", def.RestAPI.Host)
	v.SetDefault("rest_api.port", def.RestAPI.Port)
	v.SetDefault("rest_api.cors", def.RestAPI.CORS)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
}

// Validate enforces the configuration-error taxonomy: unknown
// comparator/strategy/null_policy values, and inconsistent weights or
// thresholds, all fail here — fatal at startup, never at decision
// time.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxBackups < 0 {
		return fmt.Errorf("database.max_backups must be >= 0")
	}

	if c.Thresholds.Review > c.Thresholds.Match {
		return fmt.Errorf("thresholds.review must be <= thresholds.match")
	}

	if !validBlockingStrategies[c.Blocking.Strategy] {
		return fmt.Errorf("blocking.strategy %q is not one of: standard, sorted_neighborhood, vector", c.Blocking.Strategy)
	}

	w := c.Trust.ComponentWeights
	sum := w.Source + w.Completeness + w.Timeliness + w.Validity
	if diff := sum - 1.0; diff < -1e-6 || diff > 1e-6 {
		return fmt.Errorf("trust.component_weights must sum to 1, got %v", sum)
	}

	for name, f := range c.Fields {
		if !validComparators[f.Comparator] {
			return fmt.Errorf("fields.%s.comparator %q is unknown", name, f.Comparator)
		}
		if f.NullPolicy != "" && !validNullPolicies[f.NullPolicy] {
			return fmt.Errorf("fields.%s.null_policy %q is unknown", name, f.NullPolicy)
		}
		if f.Weight < 0 {
			return fmt.Errorf("fields.%s.weight must be >= 0", name)
		}
	}

	for field, s := range c.Survivorship {
		if !validSurvivorshipStrategies[s.Strategy] {
			return fmt.Errorf("survivorship.%s.strategy %q is unknown", field, s.Strategy)
		}
	}

	if c.Embedding.Enabled && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required when embedding is enabled")
	}
	if c.VectorIndex.Enabled && c.VectorIndex.Provider == "qdrant" && c.VectorIndex.URL == "" {
		return fmt.Errorf("vectorindex.url is required when the qdrant provider is enabled")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the directory holding the lineage database.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the directory configuration files are searched in
// under the user's home.
func ConfigPath() string {
	return defaultConfigDir()
}

// DatabasePath returns the default lineage database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "lineage.db")
}
