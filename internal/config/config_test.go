package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "tender-intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "5ML-TenderIntel/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)
	assert.Equal(t, 3, cfg.Fetch.PageCap)
	assert.InDelta(t, 0.85, cfg.Dedup.TitleThreshold, 0.001)
	assert.Equal(t, 2, cfg.Dedup.ClosingToleranceDays)
	assert.Equal(t, 10, cfg.Digest.TopN)
	assert.Equal(t, 7, cfg.Digest.ResurfaceDays)
	assert.Equal(t, 90, cfg.Feedback.WindowDays)
	assert.Equal(t, 10, cfg.Feedback.DecisionThreshold)
	assert.Equal(t, "Asia/Hong_Kong", cfg.Schedule.Timezone)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.Ingestion)
	assert.Equal(t, "0 5 * * 0", cfg.Schedule.Feedback)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.ClassifierModel)
	assert.False(t, cfg.Anthropic.Enabled())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/tenders
log:
  level: debug
  format: console
digest:
  top_n: 5
discovery:
  hubs:
    - url: https://www.gld.gov.hk/en/tender-notices
      jurisdiction: HK
      keywords: [tender, quotation]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Digest.TopN)
	require.Len(t, cfg.Discovery.Hubs, 1)
	assert.Equal(t, "HK", cfg.Discovery.Hubs[0].Jurisdiction)
	assert.Equal(t, []string{"tender", "quotation"}, cfg.Discovery.Hubs[0].Keywords)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Fetch.PageCap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("TENDER_STORE_DRIVER", "postgres")
	t.Setenv("TENDER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agency.yaml")
	yaml := `
digest:
  top_n: 5
schedule:
  timezone: Asia/Singapore
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Digest.TopN)
	assert.Equal(t, "Asia/Singapore", cfg.Schedule.Timezone)
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "tender-intel.db"
	cfg.Server.Port = 8080
	cfg.Fetch.TimeoutSecs = 15
	cfg.Digest.TopN = 10
	cfg.Schedule.Timezone = "Asia/Hong_Kong"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		mode    string
		wantErr string
	}{
		{name: "defaults store", mode: "store"},
		{name: "unknown driver", mode: "store", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "not supported"},
		{name: "postgres without url", mode: "store", mutate: func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = ""
		}, wantErr: "required for postgres"},
		{name: "serve bad port", mode: "serve", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "archive without bucket", mode: "ingest", mutate: func(c *Config) { c.Ingest.ArchivePayload = true }, wantErr: "archive.bucket"},
		{name: "kafka sink without brokers", mode: "digest", mutate: func(c *Config) { c.Digest.Sinks = []string{"kafka"} }, wantErr: "kafka.brokers"},
		{name: "stdout sink", mode: "digest", mutate: func(c *Config) { c.Digest.Sinks = []string{"stdout"} }},
		{name: "unknown sink", mode: "digest", mutate: func(c *Config) { c.Digest.Sinks = []string{"pigeon"} }, wantErr: "unknown digest sink"},
		{name: "bad timezone", mode: "schedule", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: "schedule.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := validDefaults()
	assert.Equal(t, "Asia/Hong_Kong", cfg.Location().String())

	cfg.Schedule.Timezone = "nowhere"
	assert.Equal(t, "UTC", cfg.Location().String())
}
