// Package config loads compiler and inspector-service configuration from
// an optional YAML file plus environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the inspector HTTP surface (internal/httpapi).
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the construct registry store's Postgres backend.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the callback-token store's Redis backend.
type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// AuthConfig controls the inspector HTTP surface's bearer-token auth.
type AuthConfig struct {
	Tokens    []string `json:"tokens"`
	JWTSecret string   `json:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// CompilerConfig controls defaults applied by domain/compiler when a
// source file does not annotate them explicitly.
type CompilerConfig struct {
	DefaultMapConcurrency int  `json:"default_map_concurrency" env:"COMPILER_DEFAULT_MAP_CONCURRENCY"`
	StrictReturnSchema    bool `json:"strict_return_schema" env:"COMPILER_STRICT_RETURN_SCHEMA"`
}

// WatchConfig controls the scheduled drift check (internal/watch).
type WatchConfig struct {
	Enabled      bool   `json:"enabled" env:"WATCH_ENABLED"`
	CronSchedule string `json:"cron_schedule" env:"WATCH_CRON_SCHEDULE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Auth     AuthConfig     `json:"auth"`
	Compiler CompilerConfig `json:"compiler"`
	Watch    WatchConfig    `json:"watch"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "sfnc",
		},
		Auth: AuthConfig{},
		Compiler: CompilerConfig{
			DefaultMapConcurrency: 0, // 0 == unbounded, per spec.md §9 open question
			StrictReturnSchema:    true,
		},
		Watch: WatchConfig{
			Enabled:      false,
			CronSchedule: "@every 30s",
		},
	}
}

// ConnectionString builds a PostgreSQL connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads a JSON config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN,
// matching the teacher's cmd entrypoint convention.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
