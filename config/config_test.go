package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/titledesk/production-reports/engine"
	"github.com/titledesk/production-reports/report"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, Default().Database, cfg.Database)
	assert.Equal(t, 10*time.Minute, cfg.SoftPro.Timeout.Duration)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
[server]
port = 8080
allowed_origins = ["http://localhost:3000"]

[database]
driver = "pgx"
dsn = "postgres://reports@localhost/reports"

[softpro]
base_url = "http://softpro:3000/api"
timeout = "90s"

[reports]
daily_include_escrow = true
[reports.branch_strategy]
r14-branches = "file_number"
`)
	t.Setenv("PORT", "")
	t.Setenv("FRONTEND_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.SoftPro.Timeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.SoftPro.BackfillPause.Duration, "unset keys keep defaults")
	assert.Equal(t, "info", cfg.Log.Level)

	opts, err := cfg.ReportOptions()
	require.NoError(t, err)
	assert.True(t, opts.DailyIncludeEscrow)
	assert.Equal(t, engine.BranchByFileNumber, opts.Strategies[report.R14Branches])
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "[server]\nport = 8080\n")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "/tmp/other.db")
	t.Setenv("SOFTPRO_API_BASE", "http://env:3000/api")
	t.Setenv("FRONTEND_URL", "https://reports.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.DSN)
	assert.Equal(t, "http://env:3000/api", cfg.SoftPro.BaseURL)
	assert.Equal(t, []string{"https://reports.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", "[server\nport = 1"},
		{"bad duration", "[softpro]\ntimeout = \"soon\""},
		{"bad driver", "[database]\ndriver = \"mysql\""},
		{"bad port", "[server]\nport = 70000"},
		{"unknown report", "[reports.branch_strategy]\nweekly = \"officer\""},
		{"unknown strategy", "[reports.branch_strategy]\nr14-ranking = \"zip\""},
	}
	t.Setenv("PORT", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) string {
		if k == "PORT" {
			return "http"
		}
		return ""
	})
	assert.Error(t, err)
}
