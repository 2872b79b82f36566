package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// UpstreamConfig holds the VOD provider API settings
type UpstreamConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Module         string `mapstructure:"module"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
}

// HarvestConfig holds catalog traversal settings
type HarvestConfig struct {
	OutDir           string  `mapstructure:"out_dir"`
	Search           string  `mapstructure:"search"`
	MaxPages         int     `mapstructure:"max_pages"`
	EpisodesMaxPages int     `mapstructure:"episodes_max_pages"`
	DelaySeconds     float64 `mapstructure:"delay_seconds"`
	Workers          int     `mapstructure:"workers"`
	WithEpisodes     bool    `mapstructure:"with_episodes"`
	WithStreams      bool    `mapstructure:"with_streams"`
}

// CacheConfig holds request cache settings
type CacheConfig struct {
	Dir        string `mapstructure:"dir"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Disabled   bool   `mapstructure:"disabled"`
}

// DownloadsConfig holds media download settings
type DownloadsConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	FFmpeg                 string `mapstructure:"ffmpeg"`
	MediaDir               string `mapstructure:"media_dir"`
	MaxDownloads           int    `mapstructure:"max_downloads"`
	FailurePolicy          string `mapstructure:"failure_policy"`
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"`
	MinFreeMB              int64  `mapstructure:"min_free_mb"`
	FilenameMaxLen         int    `mapstructure:"filename_max_len"`
}

// FilterConfig holds catalog filter settings
type FilterConfig struct {
	Category FilterDef `mapstructure:"category"`
	Name     FilterDef `mapstructure:"name"`
}

// FilterDef represents a filter definition
type FilterDef struct {
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// DatabaseConfig holds snapshot store settings
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`

	Database LogLevelConfig `mapstructure:"database"`
}

// LogLevelConfig represents log level configuration for a specific component
type LogLevelConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Failure policies for the download phase
const (
	FailurePolicyAbort    = "abort"
	FailurePolicyContinue = "continue"
)

var cfg *Config

// bindEnvWithAlternatives binds a viper key to environment variables with alternative names
// This allows supporting both VODHARVEST_UPSTREAM_BASE_URL and IPTVRO_BASE_URL for the same key
func bindEnvWithAlternatives(key string, alternatives ...string) {
	viper.BindEnv(key)
	for _, alt := range alternatives {
		if value := os.Getenv(alt); value != "" {
			viper.Set(key, value)
			break
		}
	}
}

// Load reads configuration from file and environment variables.
// configFile overrides the search path when non-empty.
func Load(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/vodharvest")
	}

	setDefaults()

	viper.SetEnvPrefix("VODHARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Environment names used by the original exporter script
	bindEnvWithAlternatives("upstream.base_url", "IPTVRO_BASE_URL")
	bindEnvWithAlternatives("upstream.module", "IPTVRO_MODULE")
	viper.BindEnv("upstream.timeout_seconds")
	viper.BindEnv("upstream.retry_attempts")

	viper.BindEnv("harvest.out_dir")
	viper.BindEnv("harvest.search")
	viper.BindEnv("harvest.max_pages")
	viper.BindEnv("harvest.episodes_max_pages")
	viper.BindEnv("harvest.delay_seconds")
	viper.BindEnv("harvest.workers")
	viper.BindEnv("harvest.with_episodes")
	viper.BindEnv("harvest.with_streams")

	bindEnvWithAlternatives("cache.dir", "IPTVRO_CACHE_DIR")
	bindEnvWithAlternatives("cache.ttl_seconds", "IPTVRO_CACHE_TTL")
	viper.BindEnv("cache.disabled")

	viper.BindEnv("downloads.enabled")
	bindEnvWithAlternatives("downloads.ffmpeg", "FFMPEG")
	bindEnvWithAlternatives("downloads.media_dir", "IPTVRO_MEDIA_DIR")
	viper.BindEnv("downloads.max_downloads")
	viper.BindEnv("downloads.failure_policy")
	viper.BindEnv("downloads.max_consecutive_failures")
	viper.BindEnv("downloads.min_free_mb")

	viper.BindEnv("database.enabled")
	viper.BindEnv("database.driver")
	viper.BindEnv("database.path")
	bindEnvWithAlternatives("database.dsn", "DATABASE_URL")

	bindEnvWithAlternatives("api.port", "API_PORT")
	viper.BindEnv("api.allowed_origins")
	viper.BindEnv("metrics.textfile")

	bindEnvWithAlternatives("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format")
	viper.BindEnv("logging.file")
	viper.BindEnv("logging.database.level")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg = loaded
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &Config{}
	}
	return cfg
}

// Set replaces the current configuration (used by tests and flag overrides)
func Set(c *Config) {
	cfg = c
}

func setDefaults() {
	viper.SetDefault("upstream.base_url", "http://127.0.0.1:8090")
	viper.SetDefault("upstream.module", "antena-play")
	viper.SetDefault("upstream.timeout_seconds", 20)
	viper.SetDefault("upstream.retry_attempts", 1)

	viper.SetDefault("harvest.out_dir", "out")
	viper.SetDefault("harvest.max_pages", 0)
	viper.SetDefault("harvest.episodes_max_pages", 0)
	viper.SetDefault("harvest.delay_seconds", 0.15)
	viper.SetDefault("harvest.workers", 1)
	viper.SetDefault("harvest.with_episodes", false)
	viper.SetDefault("harvest.with_streams", false)

	viper.SetDefault("cache.dir", "out/.cache")
	viper.SetDefault("cache.ttl_seconds", 21600)
	viper.SetDefault("cache.disabled", false)

	viper.SetDefault("downloads.enabled", false)
	viper.SetDefault("downloads.ffmpeg", "ffmpeg")
	viper.SetDefault("downloads.media_dir", "out/media")
	viper.SetDefault("downloads.max_downloads", 0)
	viper.SetDefault("downloads.failure_policy", FailurePolicyAbort)
	viper.SetDefault("downloads.max_consecutive_failures", 3)
	viper.SetDefault("downloads.min_free_mb", 0)
	viper.SetDefault("downloads.filename_max_len", 160)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "out/vodharvest.db")

	viper.SetDefault("api.port", 8080)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.max_size_mb", 50)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 28)
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.Module == "" {
		return fmt.Errorf("upstream.module is required")
	}

	if c.Harvest.MaxPages < 0 {
		return fmt.Errorf("harvest.max_pages must not be negative")
	}
	if c.Harvest.EpisodesMaxPages < 0 {
		return fmt.Errorf("harvest.episodes_max_pages must not be negative")
	}
	if c.Harvest.DelaySeconds < 0 {
		return fmt.Errorf("harvest.delay_seconds must not be negative")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 0 and 65535")
	}
	if c.Downloads.MaxDownloads < 0 {
		return fmt.Errorf("downloads.max_downloads must not be negative")
	}

	switch c.Downloads.FailurePolicy {
	case "", FailurePolicyAbort, FailurePolicyContinue:
	default:
		return fmt.Errorf("downloads.failure_policy must be one of: abort, continue")
	}

	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}
	if c.Database.Enabled && c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres driver")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats := map[string]bool{"json": true, "text": true}

	if c.Logging.Format != "" && !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Database.Level != "" && !validLevels[c.Logging.Database.Level] {
		return fmt.Errorf("logging.database.level must be one of: debug, info, warn, error")
	}

	return nil
}

// GetAppLogLevel returns the log level for application logging
func (c *Config) GetAppLogLevel() string {
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "info"
}

// GetDatabaseLogLevel returns the log level for database logging
// Priority: logging.database.level → logging.level → "warn"
func (c *Config) GetDatabaseLogLevel() string {
	if c.Logging.Database.Level != "" {
		return c.Logging.Database.Level
	}
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "warn"
}

// CacheEnabled reports whether the request cache should be used
func (c *Config) CacheEnabled() bool {
	return !c.Cache.Disabled && c.Cache.Dir != ""
}

// NeedsEpisodes reports whether per-show episode lists must be fetched
func (c *Config) NeedsEpisodes() bool {
	return c.Harvest.WithEpisodes || c.NeedsStreams()
}

// NeedsStreams reports whether stream URLs must be resolved
func (c *Config) NeedsStreams() bool {
	return c.Harvest.WithStreams || c.Downloads.Enabled
}
