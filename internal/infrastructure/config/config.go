// Package config loads service configuration with viper.
//
// Priority (highest to lowest):
//  1. Environment variables with DOCFLOW_ prefix (e.g. DOCFLOW_DATABASE_DSN)
//  2. config.{toml,yaml} in ., ./config or /etc/docflow
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"docflow/internal/core/numerator"
	"docflow/internal/domain/approval"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/pkg/logger"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Numbering NumberingConfig `mapstructure:"numbering"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Port    string `mapstructure:"port"`
	Storage string `mapstructure:"storage"` // postgres or memory
}

// DatabaseConfig holds connection, pool and transaction settings.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	MigrateOnStart   bool          `mapstructure:"migrate_on_start"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// NumberingConfig tunes the document number allocator.
type NumberingConfig struct {
	OverflowPolicy string            `mapstructure:"overflow_policy"`
	Prefixes       map[string]string `mapstructure:"prefixes"`
}

// ApprovalConfig controls approval rule loading and who acts on each role.
type ApprovalConfig struct {
	CacheRules bool `mapstructure:"cache_rules"`
	// Approvers maps a level role to the user expected to act on it.
	Approvers map[string]string `mapstructure:"approvers"`
}

// HTTPConfig holds server timeouts and idempotency key retention.
type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// IdempotencyTTL of zero disables X-Idempotency-Key handling.
	IdempotencyTTL             time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval time.Duration `mapstructure:"idempotency_cleanup_interval"`
}

// New returns a viper instance with defaults, search paths and env binding.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/docflow")

	v.SetEnvPrefix("DOCFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "docflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.storage", StoragePostgres)

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.lock_timeout", 5*time.Second)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("numbering.overflow_policy", string(numerator.OverflowWiden))
	v.SetDefault("numbering.prefixes", map[string]string{})

	v.SetDefault("approval.cache_rules", true)
	v.SetDefault("approval.approvers", map[string]string{})

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 20*time.Second)
	v.SetDefault("http.idempotency_ttl", 24*time.Hour)
	v.SetDefault("http.idempotency_cleanup_interval", time.Hour)
}

// Load reads configuration from files and environment and validates it.
func Load() (*Config, error) {
	return LoadFrom(New())
}

// LoadFrom reads configuration from a prepared viper instance. A missing
// config file is not an error.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.App.Storage {
	case StoragePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("app.storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.App.Storage)
	}

	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database.max_conns must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) must be between 0 and database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	switch numerator.OverflowPolicy(c.Numbering.OverflowPolicy) {
	case numerator.OverflowWiden, numerator.OverflowFail:
	default:
		return fmt.Errorf("numbering.overflow_policy must be %q or %q, got %q",
			numerator.OverflowWiden, numerator.OverflowFail, c.Numbering.OverflowPolicy)
	}
	if err := c.Prefixes().Validate(); err != nil {
		return fmt.Errorf("numbering.prefixes: %w", err)
	}
	return nil
}

// Prefixes returns the built-in prefix table with configured overrides.
// Viper lower-cases map keys, so document types are upper-cased back.
func (c *Config) Prefixes() numerator.Prefixes {
	overrides := make(map[string]string, len(c.Numbering.Prefixes))
	for k, v := range c.Numbering.Prefixes {
		overrides[strings.ToUpper(k)] = v
	}
	return numerator.DefaultPrefixes().Merge(overrides)
}

// AllocatorOptions turns the numbering section into allocator options.
func (c *Config) AllocatorOptions() []numerator.Option {
	return []numerator.Option{
		numerator.WithPrefixes(c.Prefixes()),
		numerator.WithOverflowPolicy(numerator.OverflowPolicy(c.Numbering.OverflowPolicy)),
	}
}

// Approvers returns the role to user directory. Viper lower-cases map
// keys, so roles are matched in lower case.
func (c *Config) Approvers() approval.StaticApprovers {
	out := make(approval.StaticApprovers, len(c.Approval.Approvers))
	for role, user := range c.Approval.Approvers {
		if user = strings.TrimSpace(user); user != "" {
			out[strings.ToLower(role)] = user
		}
	}
	return out
}

// PoolConfig maps the database section onto the pool settings.
func (c *Config) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.Database.DSN)
	pc.ApplicationName = c.App.Name
	pc.MaxConns = c.Database.MaxConns
	pc.MinConns = c.Database.MinConns
	pc.MaxConnLifetime = c.Database.ConnMaxLifetime
	pc.MaxConnIdleTime = c.Database.ConnMaxIdleTime
	pc.StatementTimeout = c.Database.StatementTimeout
	pc.LockTimeout = c.Database.LockTimeout
	return pc
}

// TxOptions maps the database timeouts onto transaction defaults.
func (c *Config) TxOptions() postgres.TxOptions {
	opts := postgres.DefaultTxOptions()
	opts.StatementTimeout = c.Database.StatementTimeout
	opts.LockTimeout = c.Database.LockTimeout
	return opts
}

// LoggerConfig maps the log section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Development: c.Log.Development}
}

// IsProduction reports whether app.env is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
