// Package config loads bmsync configuration from a YAML file, with .env and
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment selects which remote API targets the clients talk to. It is
// resolved once at load time and injected into client constructors; nothing
// mutates it mid-process.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == Sandbox || e == Production
}

// Config holds all configuration for the tool.
type Config struct {
	Environment Environment       `yaml:"environment"`
	GHL         GHLConfig         `yaml:"ghl"`
	Baremetrics BaremetricsConfig `yaml:"baremetrics"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Import      ImportConfig      `yaml:"import"`
	Report      ReportConfig      `yaml:"report"`
}

// GHLConfig holds GoHighLevel API settings.
type GHLConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	LocationID     string `yaml:"location_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
	PageDelayMs    int    `yaml:"page_delay_ms"`
}

// BaremetricsConfig holds Baremetrics API settings. BaseURL defaults by
// environment: the sandbox API for sandbox, the live API for production.
type BaremetricsConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	SourceID       string `yaml:"source_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageDelayMs    int    `yaml:"page_delay_ms"`
}

// DatabaseConfig holds the ledger database connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds optional Redis settings for the import run lock. When
// Addr is empty the lock falls back to a Postgres advisory lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ImportConfig holds batch-import pacing and recovery settings.
type ImportConfig struct {
	BatchSize         int `yaml:"batch_size"`
	EntryDelayMs      int `yaml:"entry_delay_ms"`
	BatchDelaySeconds int `yaml:"batch_delay_seconds"`
	StaleAfterMinutes int `yaml:"stale_after_minutes"`
	LockTTLMinutes    int `yaml:"lock_ttl_minutes"`
}

// ReportConfig holds output settings for comparison snapshots.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

const (
	sandboxBaseURL    = "https://api-sandbox.baremetrics.com/v1"
	productionBaseURL = "https://api.baremetrics.com/v1"
	ghlBaseURL        = "https://rest.gohighlevel.com/v1"
)

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = Sandbox
	}
	if cfg.GHL.BaseURL == "" {
		cfg.GHL.BaseURL = ghlBaseURL
	}
	if cfg.GHL.TimeoutSeconds == 0 {
		cfg.GHL.TimeoutSeconds = 30
	}
	if cfg.GHL.PageSize == 0 {
		cfg.GHL.PageSize = 100
	}
	if cfg.GHL.PageDelayMs == 0 {
		cfg.GHL.PageDelayMs = 300
	}
	if cfg.Baremetrics.BaseURL == "" {
		if cfg.Environment == Production {
			cfg.Baremetrics.BaseURL = productionBaseURL
		} else {
			cfg.Baremetrics.BaseURL = sandboxBaseURL
		}
	}
	if cfg.Baremetrics.TimeoutSeconds == 0 {
		cfg.Baremetrics.TimeoutSeconds = 30
	}
	if cfg.Baremetrics.PageDelayMs == 0 {
		cfg.Baremetrics.PageDelayMs = 300
	}
	if cfg.Import.BatchSize == 0 {
		cfg.Import.BatchSize = 10
	}
	if cfg.Import.EntryDelayMs == 0 {
		cfg.Import.EntryDelayMs = 500
	}
	if cfg.Import.BatchDelaySeconds == 0 {
		cfg.Import.BatchDelaySeconds = 5
	}
	if cfg.Import.StaleAfterMinutes == 0 {
		cfg.Import.StaleAfterMinutes = 30
	}
	if cfg.Import.LockTTLMinutes == 0 {
		cfg.Import.LockTTLMinutes = 60
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "reports"
	}
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file is read first (if present) so secrets can live there locally
// and in real env vars on a server.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BMSYNC_ENV"); v != "" {
		cfg.Environment = Environment(v)
		// Re-resolve the environment-dependent default in both directions,
		// so the resolved environment and the target URL never disagree. A
		// custom base URL pinned in the file (or BAREMETRICS_BASE_URL below)
		// is left alone.
		switch cfg.Baremetrics.BaseURL {
		case sandboxBaseURL, productionBaseURL:
			if cfg.Environment == Production {
				cfg.Baremetrics.BaseURL = productionBaseURL
			} else {
				cfg.Baremetrics.BaseURL = sandboxBaseURL
			}
		}
	}
	if v := os.Getenv("GHL_API_KEY"); v != "" {
		cfg.GHL.APIKey = v
	}
	if v := os.Getenv("GHL_BASE_URL"); v != "" {
		cfg.GHL.BaseURL = v
	}
	if v := os.Getenv("GHL_LOCATION_ID"); v != "" {
		cfg.GHL.LocationID = v
	}
	if v := os.Getenv("BAREMETRICS_API_KEY"); v != "" {
		cfg.Baremetrics.APIKey = v
	}
	if v := os.Getenv("BAREMETRICS_BASE_URL"); v != "" {
		cfg.Baremetrics.BaseURL = v
	}
	if v := os.Getenv("BAREMETRICS_SOURCE_ID"); v != "" {
		cfg.Baremetrics.SourceID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	return cfg, nil
}

// Validate checks the settings every command needs before any work starts.
// Failures here are setup errors: fatal, reported, non-zero exit.
func (cfg *Config) Validate() error {
	if !cfg.Environment.Valid() {
		return fmt.Errorf("unknown environment %q (want sandbox or production)", cfg.Environment)
	}
	if cfg.GHL.APIKey == "" {
		return fmt.Errorf("ghl.api_key is required (GHL_API_KEY)")
	}
	if cfg.Baremetrics.APIKey == "" {
		return fmt.Errorf("baremetrics.api_key is required (BAREMETRICS_API_KEY)")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required (DATABASE_URL)")
	}
	return nil
}

// EntryDelay returns the pacing delay between individual import operations.
func (cfg *Config) EntryDelay() time.Duration {
	return time.Duration(cfg.Import.EntryDelayMs) * time.Millisecond
}

// BatchDelay returns the pacing delay between batch chunks.
func (cfg *Config) BatchDelay() time.Duration {
	return time.Duration(cfg.Import.BatchDelaySeconds) * time.Second
}

// PageDelayGHL returns the pacing delay between GHL list pages.
func (cfg *Config) PageDelayGHL() time.Duration {
	return time.Duration(cfg.GHL.PageDelayMs) * time.Millisecond
}

// PageDelayBaremetrics returns the pacing delay between Baremetrics pages.
func (cfg *Config) PageDelayBaremetrics() time.Duration {
	return time.Duration(cfg.Baremetrics.PageDelayMs) * time.Millisecond
}

// StaleAfter returns the window after which an "importing" row left behind
// by a crashed run is considered stuck and eligible for automatic reset.
func (cfg *Config) StaleAfter() time.Duration {
	return time.Duration(cfg.Import.StaleAfterMinutes) * time.Minute
}

// LockTTL returns the advisory run-lock lease duration.
func (cfg *Config) LockTTL() time.Duration {
	return time.Duration(cfg.Import.LockTTLMinutes) * time.Minute
}
