// Package config provides configuration management.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pool-boq/core/quote"
	"pool-boq/core/types"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
)

// EnvPrefix is the prefix for environment overrides (POOLBOQ_QUOTE_VAT_RATE, ...)
const EnvPrefix = "POOLBOQ"

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" mapstructure:"version"`

	// Quote contains the caller-side price adjustments
	Quote QuoteConfig `json:"quote" mapstructure:"quote"`

	// Storage selects where templates, variables and price lists live
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Server contains HTTP server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Metrics contains Prometheus settings
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" mapstructure:"logging"`
}

// QuoteConfig contains quote adjustments applied after BOQ pricing
type QuoteConfig struct {
	// UnforeseenPercent is the uplift applied to the base sale total
	UnforeseenPercent float64 `json:"unforeseen_percent" mapstructure:"unforeseen_percent"`

	// VATRate is the VAT percentage used for HT to TTC conversion
	VATRate float64 `json:"vat_rate" mapstructure:"vat_rate"`

	// Currency is the quote currency
	Currency types.Currency `json:"currency" mapstructure:"currency"`
}

// StorageConfig contains repository settings
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, postgres
	Backend string `json:"backend" mapstructure:"backend"`

	// Path is the directory (file) or database file (sqlite)
	Path string `json:"path" mapstructure:"path"`

	// DSN is the Postgres connection string
	DSN string `json:"dsn" mapstructure:"dsn"`

	// Fallback serves the built-in catalog when the backend fails
	Fallback bool `json:"fallback" mapstructure:"fallback"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" mapstructure:"addr"`

	// AllowedOrigins enables CORS for browser configurators
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	// Enabled exposes /metrics
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// Settings converts the configured defaults into quote settings
func (q QuoteConfig) Settings() quote.Settings {
	return quote.Settings{
		UnforeseenPercent: decimal.NewFromFloat(q.UnforeseenPercent),
		VATRate:           decimal.NewFromFloat(q.VATRate),
		Currency:          q.Currency,
	}
}

// Storage backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: "1.0",
		Quote: QuoteConfig{
			UnforeseenPercent: 5,
			VATRate:           20,
			Currency:          types.CurrencyEUR,
		},
		Storage: StorageConfig{
			Backend:  BackendSQLite,
			Path:     filepath.Join(homeDir, ".pool-boq", "boq.db"),
			Fallback: true,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from path (optional) and POOLBOQ_* environment
// variables on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Config("read config file", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Config("decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and backend requirements
func (c *Config) Validate() error {
	if c.Quote.VATRate < 0 {
		return errors.Newf(errors.TypeConfig, "quote.vat_rate must not be negative, got %v", c.Quote.VATRate)
	}
	if c.Quote.UnforeseenPercent < 0 {
		return errors.Newf(errors.TypeConfig, "quote.unforeseen_percent must not be negative, got %v", c.Quote.UnforeseenPercent)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Storage.Path == "" {
			return errors.Newf(errors.TypeConfig, "storage.path is required for the %s backend", c.Storage.Backend)
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return errors.New(errors.TypeConfig, "storage.dsn is required for the postgres backend")
		}
	default:
		return errors.Newf(errors.TypeConfig, "unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("quote.unforeseen_percent", d.Quote.UnforeseenPercent)
	v.SetDefault("quote.vat_rate", d.Quote.VATRate)
	v.SetDefault("quote.currency", string(d.Quote.Currency))
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.fallback", d.Storage.Fallback)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.development", d.Logging.Development)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
