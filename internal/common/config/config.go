// Package config provides configuration management for the git activity
// observer: environment variables, an optional YAML file, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the observer process.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// DatabaseConfig holds Sink (DatabaseSync) connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "postgres" or "sqlite"
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds event-bus messaging configuration. An empty URL means
// the in-memory event bus is used instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// WatchConfig holds the tunables from spec.md §4/§5 that are left as
// implementer choices (open questions).
type WatchConfig struct {
	DebounceMillis        int `mapstructure:"debounceMillis"`
	RemotePollSeconds      int `mapstructure:"remotePollSeconds"`
	HeartbeatSeconds       int `mapstructure:"heartbeatSeconds"`
	SessionTimeoutSeconds  int `mapstructure:"sessionTimeoutSeconds"`
	SyncSeconds            int `mapstructure:"syncSeconds"`
	PushLookbackMinutes    int `mapstructure:"pushLookbackMinutes"`
	GitTimeoutSeconds      int `mapstructure:"gitTimeoutSeconds"`
	GitFetchTimeoutSeconds int `mapstructure:"gitFetchTimeoutSeconds"`
}

// ReadTimeoutDuration returns the HTTP read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the HTTP write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Debounce returns the watcher debounce delay as a time.Duration.
func (w *WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMillis) * time.Millisecond
}

// RemotePollInterval returns the remote-polling cadence.
func (w *WatchConfig) RemotePollInterval() time.Duration {
	return time.Duration(w.RemotePollSeconds) * time.Second
}

// HeartbeatInterval returns the session heartbeat cadence.
func (w *WatchConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatSeconds) * time.Second
}

// SessionTimeout returns the session inactivity timeout.
func (w *WatchConfig) SessionTimeout() time.Duration {
	return time.Duration(w.SessionTimeoutSeconds) * time.Second
}

// SyncInterval returns the Sink sync cadence.
func (w *WatchConfig) SyncInterval() time.Duration {
	return time.Duration(w.SyncSeconds) * time.Second
}

// PushLookback returns the reflog lookback window used to detect a recent push.
func (w *WatchConfig) PushLookback() time.Duration {
	return time.Duration(w.PushLookbackMinutes) * time.Minute
}

// GitTimeout returns the default timeout for git invocations.
func (w *WatchConfig) GitTimeout() time.Duration {
	return time.Duration(w.GitTimeoutSeconds) * time.Second
}

// GitFetchTimeout returns the timeout for `git fetch`.
func (w *WatchConfig) GitFetchTimeout() time.Duration {
	return time.Duration(w.GitFetchTimeoutSeconds) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./gitwatch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gitwatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "gitwatch")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "gitwatch")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	// Watch tunables; defaults are taken straight from spec.md.
	v.SetDefault("watch.debounceMillis", 400)
	v.SetDefault("watch.remotePollSeconds", 120)
	v.SetDefault("watch.heartbeatSeconds", 30)
	v.SetDefault("watch.sessionTimeoutSeconds", 600)
	v.SetDefault("watch.syncSeconds", 60)
	v.SetDefault("watch.pushLookbackMinutes", 2)
	v.SetDefault("watch.gitTimeoutSeconds", 15)
	v.SetDefault("watch.gitFetchTimeoutSeconds", 60)
}

// Load reads configuration from environment variables, an optional
// config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the given directory (or default
// locations if empty).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GITWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gitwatch/")

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

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		errs = append(errs, "database.driver must be one of: postgres, sqlite")
	}
	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Watch.DebounceMillis <= 0 {
		errs = append(errs, "watch.debounceMillis must be positive")
	}
	if cfg.Watch.RemotePollSeconds <= 0 {
		errs = append(errs, "watch.remotePollSeconds must be positive")
	}
	if cfg.Watch.SessionTimeoutSeconds <= 0 {
		errs = append(errs, "watch.sessionTimeoutSeconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
