// Package config loads sideline settings from an optional YAML file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting of the match service.
type Config struct {
	MatchID  string   `yaml:"match_id"`
	LogLevel string   `yaml:"log_level"`
	NATS     NATS     `yaml:"nats"`
	Store    Store    `yaml:"store"`
	Database Database `yaml:"database"`
	Gateway  Gateway  `yaml:"gateway"`
	Sync     Sync     `yaml:"sync"`
	User     User     `yaml:"user"`
}

// NATS addresses the shared match store. An empty URL disables sync.
type NATS struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// Store selects the local snapshot backend.
type Store struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MaxValueBytes int    `yaml:"max_value_bytes"`
}

// Database holds Postgres connection settings for the postgres driver.
type Database struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Gateway configures the HTTP server.
type Gateway struct {
	Port string `yaml:"port"`
}

// Sync tunes the remote engine.
type Sync struct {
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	UseTransactions bool          `yaml:"use_transactions"`
	PushDelay       time.Duration `yaml:"push_delay"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

// User is the identity this device writes as.
type User struct {
	ID        string `yaml:"id"`
	Anonymous bool   `yaml:"anonymous"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		NATS: NATS{
			Bucket: "MATCHES",
		},
		Store: Store{
			Driver: DriverSQLite,
			Path:   "data/sideline.db",
		},
		Database: Database{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "sideline",
			SSLMode: "disable",
		},
		Gateway: Gateway{Port: "8081"},
		Sync: Sync{
			MaxRetries:      8,
			RetryDelay:      50 * time.Millisecond,
			UseTransactions: true,
			PushDelay:       250 * time.Millisecond,
			TickInterval:    time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, when it exists, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.MatchID = getEnv("MATCH_ID", c.MatchID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Bucket = getEnv("NATS_BUCKET", c.NATS.Bucket)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Gateway.Port = getEnv("GATEWAY_PORT", c.Gateway.Port)
	c.Sync.MaxRetries = getEnvAsInt("SYNC_MAX_RETRIES", c.Sync.MaxRetries)
	c.Sync.RetryDelay = getEnvAsDuration("SYNC_RETRY_DELAY", c.Sync.RetryDelay)
	c.Sync.UseTransactions = getEnvAsBool("SYNC_USE_TRANSACTIONS", c.Sync.UseTransactions)
	c.User.ID = getEnv("USER_ID", c.User.ID)
	c.User.Anonymous = getEnvAsBool("USER_ANONYMOUS", c.User.Anonymous)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync.max_retries must not be negative")
	}
	return nil
}

// DSN returns the Postgres connection URL. DATABASE_URL wins over the
// individual fields.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
