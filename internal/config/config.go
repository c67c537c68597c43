// Package config loads barcode filer settings from settings.json or a YAML file,
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justMega/barcode-pdf-pc/internal/dispose"
	"github.com/justMega/barcode-pdf-pc/internal/ledger"
	"github.com/justMega/barcode-pdf-pc/internal/preprocess"
)

// DefaultSettingsFile is read from the working directory when no path is given
const DefaultSettingsFile = "settings.json"

// Config holds all configuration for the barcode filer.
type Config struct {
	Folders       FoldersConfig       `yaml:",inline"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Preprocess    preprocess.Params   `yaml:"preprocess"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// FoldersConfig holds the two folders of a scan. The keys match settings.json.
type FoldersConfig struct {
	Input  string `yaml:"input_folder"`
	Output string `yaml:"output_folder"`
}

// PipelineConfig holds per-document processing settings.
type PipelineConfig struct {
	Workers         int           `yaml:"workers"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	RenderDPI       float64       `yaml:"render_dpi"`
	JPEGQuality     int           `yaml:"jpeg_quality"`
	CollisionPolicy string        `yaml:"collision_policy"` // error, suffix or overwrite
	TryHarder       bool          `yaml:"try_harder"`
}

// LedgerConfig holds scan history storage settings.
type LedgerConfig struct {
	Driver   string         `yaml:"driver"` // none, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// ServerConfig holds trigger API settings.
type ServerConfig struct {
	Addr             string        `yaml:"addr"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// Load reads configuration from path. An empty path falls back to
// settings.json in the working directory when it exists, then to defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if _, err := os.Stat(DefaultSettingsFile); err == nil {
			path = DefaultSettingsFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// JSON is valid YAML, so settings.json goes through the same decoder.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		cfg.Ledger.SQLite.Path = ResolveRelativePath(path, cfg.Ledger.SQLite.Path)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the calibrated pipeline defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers:         runtime.NumCPU(),
			DocumentTimeout: 2 * time.Minute,
			RenderDPI:       300,
			JPEGQuality:     95,
			CollisionPolicy: string(dispose.CollisionError),
			TryHarder:       true,
		},
		Preprocess: preprocess.DefaultParams(),
		Ledger: LedgerConfig{
			Driver: ledger.DriverSQLite,
			SQLite: SQLiteConfig{
				Path: "barcode-filer.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns: 4,
			},
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8090",
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Minute,
			GracefulShutdown: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.DocumentTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.document_timeout must be positive"))
	}
	if c.Pipeline.RenderDPI < 36 || c.Pipeline.RenderDPI > 1200 {
		errs = append(errs, fmt.Errorf("pipeline.render_dpi must be between 36 and 1200, got %g", c.Pipeline.RenderDPI))
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("pipeline.jpeg_quality must be between 1 and 100, got %d", c.Pipeline.JPEGQuality))
	}
	if _, err := dispose.ParseCollisionPolicy(c.Pipeline.CollisionPolicy); err != nil {
		errs = append(errs, err)
	}
	if err := c.Preprocess.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("preprocess: %w", err))
	}

	switch c.Ledger.Driver {
	case ledger.DriverNone:
	case ledger.DriverSQLite:
		if c.Ledger.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("ledger.sqlite.path is required for the sqlite driver"))
		}
	case ledger.DriverPostgres:
		if c.Ledger.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("ledger.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid ledger driver: %s", c.Ledger.Driver))
	}

	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Observability.LogFormat))
	}

	return errors.Join(errs...)
}

// RequireFolders checks that both scan folders are set. It is separate from
// Validate so commands that never scan can run without them.
func (c *Config) RequireFolders() error {
	if strings.TrimSpace(c.Folders.Input) == "" {
		return fmt.Errorf("input_folder is not set")
	}
	if strings.TrimSpace(c.Folders.Output) == "" {
		return fmt.Errorf("output_folder is not set")
	}
	return nil
}

// CollisionPolicy returns the parsed collision policy.
func (c *Config) CollisionPolicy() dispose.CollisionPolicy {
	p, err := dispose.ParseCollisionPolicy(c.Pipeline.CollisionPolicy)
	if err != nil {
		return dispose.CollisionError
	}
	return p
}

// LedgerOptions converts the ledger section for ledger.Open.
func (c *Config) LedgerOptions() ledger.Config {
	return ledger.Config{
		Driver:       c.Ledger.Driver,
		SQLitePath:   c.Ledger.SQLite.Path,
		PostgresDSN:  c.Ledger.Postgres.DSN,
		MaxOpenConns: c.Ledger.Postgres.MaxOpenConns,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("INPUT_FOLDER"); v != "" {
		cfg.Folders.Input = v
	}

	if v := os.Getenv("OUTPUT_FOLDER"); v != "" {
		cfg.Folders.Output = v
	}

	if v := os.Getenv("SCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SCAN_WORKERS: %w", err)
		}
		cfg.Pipeline.Workers = n
	}

	if v := os.Getenv("COLLISION_POLICY"); v != "" {
		cfg.Pipeline.CollisionPolicy = v
	}

	if v := os.Getenv("LEDGER_DRIVER"); v != "" {
		cfg.Ledger.Driver = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Ledger.Driver = ledger.DriverSQLite
			cfg.Ledger.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Ledger.Driver = ledger.DriverPostgres
			cfg.Ledger.Postgres.DSN = v
		}
	}

	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
