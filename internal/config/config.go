package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Retention RetentionConfig `mapstructure:"retention"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port                string `mapstructure:"port"`
	ShutdownTimeoutSecs int    `mapstructure:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"` // postgres | sqlite
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_minutes"`
	LogLevel           string `mapstructure:"log_level"` // silent | error | warn | info
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type CaptureConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Methods          []string `mapstructure:"methods"`
	IgnorePaths      []string `mapstructure:"ignore_paths"`
	OnlyErrors       bool     `mapstructure:"only_errors"`
	MaxBodyBytes     int      `mapstructure:"max_body_bytes"`
	PreviewChars     int      `mapstructure:"preview_chars"`
	ImportantHeaders []string `mapstructure:"important_headers"`
	RecordQueries    bool     `mapstructure:"record_queries"`
	TimeoutMs        int      `mapstructure:"timeout_ms"`
	ReferenceCache   int      `mapstructure:"reference_cache_size"`
}

type NotifierConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	HeartbeatSeconds int  `mapstructure:"heartbeat_seconds"`
	SendBuffer       int  `mapstructure:"send_buffer"`
}

type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Days     int    `mapstructure:"days"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminKey  string `mapstructure:"admin_key"`
}

type DashboardConfig struct {
	Prefix      string   `mapstructure:"prefix"`
	RateQPS     float64  `mapstructure:"rate_qps"`
	RateBurst   int      `mapstructure:"rate_burst"`
	AdminPaths  []string `mapstructure:"admin_paths"`
	ReadOnly    bool     `mapstructure:"read_only"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultImportantHeaders is the header allow-list used when none is configured.
var DefaultImportantHeaders = []string{
	"user-agent",
	"content-type",
	"accept",
	"origin",
	"referer",
	"x-forwarded-for",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout_seconds", 5)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime_minutes", 60)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel_prefix", "modr")

	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE"})
	v.SetDefault("capture.ignore_paths", []string{"/favicon.ico"})
	v.SetDefault("capture.only_errors", false)
	v.SetDefault("capture.max_body_bytes", 100000)
	v.SetDefault("capture.preview_chars", 500)
	v.SetDefault("capture.important_headers", DefaultImportantHeaders)
	v.SetDefault("capture.record_queries", true)
	v.SetDefault("capture.timeout_ms", 10000)
	v.SetDefault("capture.reference_cache_size", 1024)

	v.SetDefault("notifier.enabled", true)
	v.SetDefault("notifier.heartbeat_seconds", 30)
	v.SetDefault("notifier.send_buffer", 64)

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.schedule", "0 3 * * *")
	v.SetDefault("retention.days", 30)

	v.SetDefault("dashboard.prefix", "/api/modr")
	v.SetDefault("dashboard.rate_qps", 20)
	v.SetDefault("dashboard.rate_burst", 40)
	v.SetDefault("dashboard.read_only", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
}

func Load() (*Config, error) {
	// A local .env file feeds the MODR_* variables below; it is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// Environment variables support
	// e.g. MODR_DATABASE_DSN
	v.SetEnvPrefix("modr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	return decode(v)
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic("config: defaults do not decode: " + err.Error())
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Capture.MaxBodyBytes <= 0 {
		return fmt.Errorf("capture.max_body_bytes must be positive")
	}
	if c.Capture.PreviewChars <= 0 {
		return fmt.Errorf("capture.preview_chars must be positive")
	}
	if c.Retention.Enabled {
		if c.Retention.Days <= 0 {
			return fmt.Errorf("retention.days must be positive when retention is enabled")
		}
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return fmt.Errorf("retention.schedule %q: %w", c.Retention.Schedule, err)
		}
	}
	if !strings.HasPrefix(c.Dashboard.Prefix, "/") {
		return fmt.Errorf("dashboard.prefix must start with /")
	}
	return nil
}
