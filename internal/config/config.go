// Package config holds the newsclean service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/orbitwire/newsclean/internal/configload"
)

// Default configuration values.
const (
	defaultServiceName     = "newsclean"
	defaultServiceVersion  = "1.0.0"
	defaultServicePort     = 8080
	defaultConcurrency     = 10
	defaultIngestQueueSize = 1024
	defaultDBDriver        = "sqlite3"
	defaultDBDSN           = "newsclean.db"
	defaultDBMaxConns      = 25
	defaultDBMaxIdleConns  = 5
	defaultRedisAddr       = "localhost:6379"
	defaultRedisChannel    = "newsclean:cleaned"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultReclassTTLMin   = 10
	defaultReclassRPS      = 100
	defaultTrendWindowDays = 30
)

// Config holds all configuration for the newsclean service.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Reclassify ReclassifyConfig `yaml:"reclassify"`
	Stats      StatsConfig      `yaml:"stats"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	Port            int    `env:"NEWSCLEAN_PORT"        yaml:"port"`
	Debug           bool   `env:"APP_DEBUG"             yaml:"debug"`
	Concurrency     int    `env:"NEWSCLEAN_CONCURRENCY" yaml:"concurrency"`
	IngestQueueSize int    `yaml:"ingest_queue_size"`
}

// DatabaseConfig holds database configuration. Driver selects sqlite3 or
// postgres; DSN is used verbatim when set, otherwise built from the
// postgres fields.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER"         yaml:"driver"`
	DSN             string        `env:"DB_DSN"            yaml:"dsn"`
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// RedisConfig holds the cleaned-article delivery channel configuration.
// RetryInterval paces the sweep that republishes cleaned articles whose
// earlier delivery failed.
type RedisConfig struct {
	Enabled        bool          `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address        string        `env:"REDIS_URL"      yaml:"address"`
	Password       string        `env:"REDIS_PASSWORD" yaml:"password"`
	Database       int           `yaml:"database"`
	ChannelCleaned string        `yaml:"channel_cleaned"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// ReclassifyConfig holds reclassification scheduler configuration.
type ReclassifyConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	JobTTL        time.Duration `yaml:"job_ttl"`
	Concurrency   int           `yaml:"concurrency"`
	RatePerSecond int           `yaml:"rate_per_second"`
}

// StatsConfig holds stats endpoint configuration.
type StatsConfig struct {
	TrendWindowDays int `yaml:"trend_window_days"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return configload.LoadWithDefaults[Config](path, setDefaults)
}

// PostgresDSN builds a lib/pq connection string from the postgres fields.
func (d *DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setLoggingDefaults(&cfg.Logging)
	setReclassifyDefaults(&cfg.Reclassify)
	setStatsDefaults(&cfg.Stats)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
	if s.Concurrency == 0 {
		s.Concurrency = defaultConcurrency
	}
	if s.IngestQueueSize == 0 {
		s.IngestQueueSize = defaultIngestQueueSize
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Driver == "" {
		d.Driver = defaultDBDriver
	}
	if d.Driver == defaultDBDriver && d.DSN == "" {
		d.DSN = defaultDBDSN
	}
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.User == "" {
		d.User = "postgres"
	}
	if d.Database == "" {
		d.Database = "newsclean"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = time.Hour
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddr
	}
	if r.ChannelCleaned == "" {
		r.ChannelCleaned = defaultRedisChannel
	}
	if r.RetryInterval == 0 {
		r.RetryInterval = time.Minute
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

func setReclassifyDefaults(r *ReclassifyConfig) {
	if r.Debounce == 0 {
		r.Debounce = 500 * time.Millisecond
	}
	if r.JobTTL == 0 {
		r.JobTTL = defaultReclassTTLMin * time.Minute
	}
	if r.Concurrency == 0 {
		r.Concurrency = defaultConcurrency
	}
	if r.RatePerSecond == 0 {
		r.RatePerSecond = defaultReclassRPS
	}
}

func setStatsDefaults(s *StatsConfig) {
	if s.TrendWindowDays == 0 {
		s.TrendWindowDays = defaultTrendWindowDays
	}
}
