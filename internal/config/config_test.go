package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "service:\n  name: newsclean\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "newsclean", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.Port)
	assert.Equal(t, 10, cfg.Service.Concurrency)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "newsclean.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10*time.Minute, cfg.Reclassify.JobTTL)
	assert.Equal(t, 100, cfg.Reclassify.RatePerSecond)
	assert.Equal(t, 30, cfg.Stats.TrendWindowDays)
	assert.Equal(t, "newsclean:cleaned", cfg.Redis.ChannelCleaned)
	assert.Equal(t, time.Minute, cfg.Redis.RetryInterval)
}

func TestLoad_ValuesFromFile(t *testing.T) {
	path := writeConfig(t, `
service:
  port: 9000
  concurrency: 4
database:
  driver: postgres
  host: db.internal
  port: 5433
  user: svc
  password: secret
  database: articles
reclassify:
  debounce: 2s
  job_ttl: 30m
stats:
  trend_window_days: 14
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, 4, cfg.Service.Concurrency)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Reclassify.Debounce)
	assert.Equal(t, 30*time.Minute, cfg.Reclassify.JobTTL)
	assert.Equal(t, 14, cfg.Stats.TrendWindowDays)

	dsn := cfg.Database.PostgresDSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "dbname=articles")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "service:\n  port: 9000\n")

	t.Setenv("NEWSCLEAN_PORT", "7070")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Service.Port, "environment wins over file")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestPostgresDSN_ExplicitDSNWins(t *testing.T) {
	d := DatabaseConfig{DSN: "postgres://u:p@host/db"}
	assert.Equal(t, "postgres://u:p@host/db", d.PostgresDSN())
}
