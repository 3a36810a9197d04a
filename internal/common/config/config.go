// Package config provides configuration management for WAAAH.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for WAAAH.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Agents    AgentsConfig    `mapstructure:"agents"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds embedded database configuration.
// Driver "sqlite3" uses Path; driver "pgx" uses the connection fields.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. Empty URL means the
// in-memory event bus is used.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TracingConfig holds OTLP span export configuration. An empty endpoint
// falls back to OTEL_EXPORTER_OTLP_ENDPOINT; with neither set, tracing is
// disabled.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"serviceName"`
	Insecure    bool   `mapstructure:"insecure"`
}

// SchedulerConfig holds periodic-tick configuration.
type SchedulerConfig struct {
	TickInterval       int `mapstructure:"tickInterval"`       // in seconds
	AckTimeout         int `mapstructure:"ackTimeout"`         // in seconds
	LogRetentionDays   int `mapstructure:"logRetentionDays"`   // age-based truncation of logs
	WaiterDropMinutes  int `mapstructure:"waiterDropMinutes"`  // safety net: clear stale waiting flags
}

// WaitConfig bounds long-poll timeouts.
type WaitConfig struct {
	DefaultTimeoutSec int `mapstructure:"defaultTimeoutSec"`
	MaxTimeoutSec     int `mapstructure:"maxTimeoutSec"`
}

// AgentsConfig points at the declarative agent seed file loaded when the
// agents table is empty.
type AgentsConfig struct {
	SeedFile string `mapstructure:"seedFile"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TickIntervalDuration returns the scheduler tick interval as a time.Duration.
func (s *SchedulerConfig) TickIntervalDuration() time.Duration {
	return time.Duration(s.TickInterval) * time.Second
}

// AckTimeoutDuration returns the PENDING_ACK expiry as a time.Duration.
func (s *SchedulerConfig) AckTimeoutDuration() time.Duration {
	return time.Duration(s.AckTimeout) * time.Second
}

// LogRetention returns the log retention window as a time.Duration.
func (s *SchedulerConfig) LogRetention() time.Duration {
	return time.Duration(s.LogRetentionDays) * 24 * time.Hour
}

// WaiterDropThreshold returns the stale-waiter sweep threshold as a time.Duration.
func (s *SchedulerConfig) WaiterDropThreshold() time.Duration {
	return time.Duration(s.WaiterDropMinutes) * time.Minute
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("WAAAH_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	// Long-poll waits ride on ordinary requests; the write timeout must
	// exceed the maximum wait timeout.
	v.SetDefault("server.writeTimeout", 3660)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "waaah.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "waaah")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "waaah")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "waaah-core")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Tracing defaults - empty endpoint means tracing is off unless the
	// standard OTEL environment variable is set.
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.serviceName", "waaah-core")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("scheduler.tickInterval", 1)
	v.SetDefault("scheduler.ackTimeout", 30)
	v.SetDefault("scheduler.logRetentionDays", 7)
	v.SetDefault("scheduler.waiterDropMinutes", 10)

	v.SetDefault("wait.defaultTimeoutSec", 290)
	v.SetDefault("wait.maxTimeoutSec", 3600)

	v.SetDefault("agents.seedFile", "agents.yaml")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix WAAAH_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/waaah/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WAAAH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for env vars where camelCase config keys do not
	// round-trip through AutomaticEnv.
	_ = v.BindEnv("database.path", "WAAAH_DB_PATH", "WAAAH_DATABASE_PATH")
	_ = v.BindEnv("agents.seedFile", "WAAAH_AGENTS_SEED_FILE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/waaah/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite3 driver")
		}
	case "pgx":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the pgx driver")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the pgx driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the pgx driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite3, pgx")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tickInterval must be positive")
	}
	if cfg.Scheduler.AckTimeout <= 0 {
		errs = append(errs, "scheduler.ackTimeout must be positive")
	}

	if cfg.Wait.DefaultTimeoutSec < 1 || cfg.Wait.DefaultTimeoutSec > cfg.Wait.MaxTimeoutSec {
		errs = append(errs, "wait.defaultTimeoutSec must be between 1 and wait.maxTimeoutSec")
	}
	if cfg.Wait.MaxTimeoutSec < 1 || cfg.Wait.MaxTimeoutSec > 3600 {
		errs = append(errs, "wait.maxTimeoutSec must be between 1 and 3600")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
