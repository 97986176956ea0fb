// Package config provides configuration loading and validation for rbkit.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rbkit/pkg/msgcache"
)

// Sentinel validation errors.
var (
	ErrInvalidLogLevel   = errors.New("invalid logging level")
	ErrInvalidLogFormat  = errors.New("invalid logging format")
	ErrInvalidCacheSize  = errors.New("cache max size must be a positive byte size")
	ErrInvalidEntries    = errors.New("cache max entries must not be negative")
	ErrInvalidLifetime   = errors.New("cache exchange lifetime must be positive")
	ErrInvalidShards     = errors.New("cache shards must be positive")
	ErrInvalidOperations = errors.New("fuzz operations must be positive")
	ErrInvalidKeySpace   = errors.New("fuzz key space must be positive")
)

// Default configuration values.
const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultCacheMaxSize     = "64KiB"
	DefaultCacheMaxEntries  = 0
	DefaultExchangeLifetime = msgcache.DefaultLifetime
	DefaultCacheShards      = 1
	DefaultFuzzSeed         = 1
	DefaultFuzzOperations   = 100_000
	DefaultFuzzKeySpace     = 1000
	DefaultEnvironment      = "development"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

// Config holds all configuration for rbkit.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Fuzz    FuzzConfig    `mapstructure:"fuzz"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig holds message cache configuration.
type CacheConfig struct {
	// MaxSize uses humanize format (e.g. "64KiB", "1MB").
	MaxSize          string        `mapstructure:"max_size"`
	MaxEntries       int           `mapstructure:"max_entries"`
	ExchangeLifetime time.Duration `mapstructure:"exchange_lifetime"`
	Shards           int           `mapstructure:"shards"`
}

// FuzzConfig holds the randomized tree exerciser configuration.
type FuzzConfig struct {
	Seed       int64 `mapstructure:"seed"`
	Operations int   `mapstructure:"operations"`
	KeySpace   int   `mapstructure:"key_space"`
}

// MetricsConfig holds telemetry export configuration.
type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint; empty disables it.
	Addr         string `mapstructure:"addr"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	Environment  string `mapstructure:"environment"`
}

// MaxSizeBytes parses MaxSize.
func (c CacheConfig) MaxSizeBytes() (int64, error) {
	size, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidCacheSize, c.MaxSize, err)
	}

	if size == 0 || size > uint64(1<<62) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCacheSize, c.MaxSize)
	}

	return int64(size), nil
}

// Options converts the section into message cache options.
func (c CacheConfig) Options() ([]msgcache.Option, error) {
	maxBytes, err := c.MaxSizeBytes()
	if err != nil {
		return nil, err
	}

	return []msgcache.Option{
		msgcache.WithMaxBytes(maxBytes),
		msgcache.WithMaxEntries(c.MaxEntries),
		msgcache.WithLifetime(c.ExchangeLifetime),
		msgcache.WithShards(c.Shards),
	}, nil
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches for .rbkit.yaml in the usual places and falls
// back to defaults when none exists.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(".rbkit")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/rbkit")
	}

	viperCfg.SetEnvPrefix("RBKIT")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("cache.max_size", DefaultCacheMaxSize)
	viperCfg.SetDefault("cache.max_entries", DefaultCacheMaxEntries)
	viperCfg.SetDefault("cache.exchange_lifetime", DefaultExchangeLifetime.String())
	viperCfg.SetDefault("cache.shards", DefaultCacheShards)

	viperCfg.SetDefault("fuzz.seed", DefaultFuzzSeed)
	viperCfg.SetDefault("fuzz.operations", DefaultFuzzOperations)
	viperCfg.SetDefault("fuzz.key_space", DefaultFuzzKeySpace)

	viperCfg.SetDefault("metrics.addr", "")
	viperCfg.SetDefault("metrics.otlp_endpoint", "")
	viperCfg.SetDefault("metrics.otlp_insecure", false)
	viperCfg.SetDefault("metrics.environment", DefaultEnvironment)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if !slices.Contains(logLevels, strings.ToLower(config.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if !slices.Contains(logFormats, strings.ToLower(config.Logging.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	_, err := config.Cache.MaxSizeBytes()
	if err != nil {
		return err
	}

	if config.Cache.MaxEntries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEntries, config.Cache.MaxEntries)
	}

	if config.Cache.ExchangeLifetime <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLifetime, config.Cache.ExchangeLifetime)
	}

	if config.Cache.Shards <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidShards, config.Cache.Shards)
	}

	if config.Fuzz.Operations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOperations, config.Fuzz.Operations)
	}

	if config.Fuzz.KeySpace <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKeySpace, config.Fuzz.KeySpace)
	}

	return nil
}
