// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fntelecomllc/studio-sessions/pkg/session"
)

// Config holds the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig identifies the service instance.
type ServerConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// SessionConfig configures the session lifecycle policy.
type SessionConfig struct {
	Duration           time.Duration `yaml:"duration"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	MaxSessionsPerUser int           `yaml:"max_sessions_per_user"`
	SessionIDLength    int           `yaml:"session_id_length"`
	RequireIPMatch     bool          `yaml:"require_ip_match"`
	RequireUAMatch     bool          `yaml:"require_ua_match"`
	StoreTimeout       time.Duration `yaml:"store_timeout"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Sink selects where auth events go: "postgres" or "log".
	Sink            string        `yaml:"sink"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

// Load reads configuration from a file.
// The path is expected to come from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "sessiond"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = "log"
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Session.Duration < 0 {
		errs = append(errs, "session.duration must not be negative")
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, "session.idle_timeout must not be negative")
	}
	if c.Session.MaxSessionsPerUser < 0 {
		errs = append(errs, "session.max_sessions_per_user must not be negative")
	}
	if c.Audit.Sink != "log" && c.Audit.Sink != "postgres" {
		errs = append(errs, fmt.Sprintf("audit.sink %q is not supported (use log or postgres)", c.Audit.Sink))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not supported", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionPolicy translates the YAML block into the session package's policy.
// Zero values fall through to the session package defaults.
func (c *Config) SessionPolicy() session.Config {
	return session.Config{
		Duration:           c.Session.Duration,
		IdleTimeout:        c.Session.IdleTimeout,
		CleanupInterval:    c.Session.CleanupInterval,
		MaxSessionsPerUser: c.Session.MaxSessionsPerUser,
		SessionIDLength:    c.Session.SessionIDLength,
		RequireIPMatch:     c.Session.RequireIPMatch,
		RequireUAMatch:     c.Session.RequireUAMatch,
		StoreTimeout:       c.Session.StoreTimeout,
	}
}
