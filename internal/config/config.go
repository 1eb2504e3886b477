// Package config holds the hands configuration: the hands.yaml file,
// HANDS_* environment variables and command-line flags, merged by viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/handsdb/hands/internal/connector"
	"github.com/handsdb/hands/internal/model"
)

// Config is the top-level hands configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Workbook  WorkbookConfig  `yaml:"workbook" mapstructure:"workbook"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Executor  ExecutorConfig  `yaml:"executor" mapstructure:"executor"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	// RateLimit is the number of sync requests allowed per minute per client. 0 disables it.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
}

// DatabaseConfig points at the workbook database.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	Schema          string        `yaml:"schema" mapstructure:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// WorkbookConfig locates the workbook on disk. Empty sub-directories are
// derived from Dir.
type WorkbookConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir" validate:"required"`
	SourcesDir string `yaml:"sources_dir" mapstructure:"sources_dir"`
	ActionsDir string `yaml:"actions_dir" mapstructure:"actions_dir"`
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
}

// SchedulerConfig controls the scheduler loop.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval        time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"gte=0"`
}

// ExecutorConfig controls how runs execute.
type ExecutorConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout" validate:"gte=0"`
	Provision      bool          `yaml:"provision" mapstructure:"provision"`
}

// RetentionConfig bounds the run history.
type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
	MaxCount int           `yaml:"max_count" mapstructure:"max_count" validate:"gte=0"`
}

// AuthConfig controls API authentication. An empty JWTSecret disables it.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl" validate:"gte=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8420,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Schema: "public",
		},
		Workbook: WorkbookConfig{
			Dir: ".",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Interval:        time.Minute,
			CleanupInterval: time.Hour,
		},
		Executor: ExecutorConfig{
			DefaultTimeout: 5 * time.Minute,
		},
		Retention: RetentionConfig{
			MaxAge:   720 * time.Hour,
			MaxCount: 1000,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default key on v so that HANDS_* environment
// variables override keys the config file does not mention.
func SetDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Load decodes v over the defaults, fills derived values, expands ${VAR}
// references in the DSN and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDerived() {
	if c.Workbook.Dir == "" {
		c.Workbook.Dir = "."
	}
	if c.Workbook.SourcesDir == "" {
		c.Workbook.SourcesDir = filepath.Join(c.Workbook.Dir, "sources")
	}
	if c.Workbook.ActionsDir == "" {
		c.Workbook.ActionsDir = filepath.Join(c.Workbook.Dir, "actions")
	}
	if c.Workbook.DataDir == "" {
		c.Workbook.DataDir = filepath.Join(c.Workbook.Dir, ".hands")
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.Workbook.DataDir, "workbook.db")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required for postgres")
	}
	return nil
}

// WriteDefault writes the default configuration to a YAML file. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ConnectionConfig returns the workbook database connection settings.
func (c *Config) ConnectionConfig() connector.ConnectionConfig {
	return connector.ConnectionConfig{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		SchemaName:      c.Database.Schema,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// RetentionPolicy returns the configured run history retention.
func (c *Config) RetentionPolicy() model.Retention {
	return model.Retention{MaxAge: c.Retention.MaxAge, MaxCount: c.Retention.MaxCount}
}

// SlogLevel maps Logging.Level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
