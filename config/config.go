/*
config.go - Application configuration

PURPOSE:
  One Config value shared by the server and the CLI. Layers, lowest to
  highest precedence:
    1. Default()
    2. config.toml
    3. .env file, then the process environment
    4. Command-line flags (applied by cmd/)

ENVIRONMENT:
  PORT              server.port
  DATABASE_DRIVER   database.driver ("sqlite3" or "pgx")
  DATABASE_URL      database.dsn
  SOFTPRO_API_BASE  softpro.base_url
  LOG_LEVEL         log.level
  FRONTEND_URL      server.allowed_origins (single origin)

EXAMPLE config.toml:
  [server]
  port = 3001
  allowed_origins = ["http://localhost:3000"]

  [database]
  driver = "pgx"
  dsn = "postgres://reports@localhost/reports"

  [softpro]
  base_url = "http://softpro.internal:3000/api"
  timeout = "10m"

  [reports]
  daily_include_escrow = false
  [reports.branch_strategy]
  r14-branches = "file_number"

  [log]
  level = "info"
  format = "json"
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/report"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	SoftPro  SoftProConfig  `toml:"softpro"`
	Reports  ReportsConfig  `toml:"reports"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type SoftProConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       Duration `toml:"timeout"`
	BackfillPause Duration `toml:"backfill_pause"`
}

type ReportsConfig struct {
	DailyIncludeEscrow bool              `toml:"daily_include_escrow"`
	BranchStrategy     map[string]string `toml:"branch_strategy"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration reads "90s" / "10m" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3001,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "reports.db",
		},
		SoftPro: SoftProConfig{
			Timeout:       Duration{10 * time.Minute},
			BackfillPause: Duration{2 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (a missing file means defaults), then applies .env and
// environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("SOFTPRO_API_BASE"); v != "" {
		c.SoftPro.BaseURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("FRONTEND_URL"); v != "" {
		c.Server.AllowedOrigins = []string{v}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("database.driver %q: want sqlite3 or pgx", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is empty")
	}
	if _, err := c.ReportOptions(); err != nil {
		return err
	}
	return nil
}

// ReportOptions converts the [reports] section.
func (c *Config) ReportOptions() (report.Options, error) {
	opts := report.DefaultOptions()
	opts.DailyIncludeEscrow = c.Reports.DailyIncludeEscrow
	for name, strategy := range c.Reports.BranchStrategy {
		n, err := report.ParseName(name)
		if err != nil {
			return opts, fmt.Errorf("reports.branch_strategy: %w", err)
		}
		s := engine.BranchStrategy(strategy)
		if !s.Valid() {
			return opts, fmt.Errorf("reports.branch_strategy.%s: unknown strategy %q", name, strategy)
		}
		opts.Strategies[n] = s
	}
	return opts, nil
}
