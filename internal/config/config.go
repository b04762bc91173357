// Package config loads the application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"zines/pkg/database"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds the whole application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	DocStore DocStoreConfig
	RabbitMQ RabbitMQConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Environment string // development, staging, production
	Port        string
	// FeedPerCreator bounds each followed creator's share of a merged feed.
	FeedPerCreator int
}

type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
	AutoMigrate     bool
}

type DocStoreConfig struct {
	Enabled    bool
	Path       string
	InMemory   bool
	SyncWrites bool
	// ScanLimit bounds every client-side scan of the document store.
	ScanLimit int
	// MaxRetries bounds the retries of a transaction that hit a write conflict.
	MaxRetries int
}

type RabbitMQConfig struct {
	URL   string // empty disables event publishing
	Queue string
}

type AuthConfig struct {
	JWTSecret    string
	JWTPublicKey string
	JWTIssuer    string
	JWTAudience  string
	// DevToken is accepted as a fixed identity in development only.
	DevToken string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("FEED_PER_CREATOR", 20)

	v.SetDefault("DATABASE_DRIVER", database.DriverSQLite)
	v.SetDefault("DATABASE_DSN", "zines.db")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE_LOG_QUERIES", false)
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	v.SetDefault("DOCSTORE_ENABLED", true)
	v.SetDefault("DOCSTORE_PATH", "data/docstore")
	v.SetDefault("DOCSTORE_IN_MEMORY", false)
	v.SetDefault("DOCSTORE_SYNC_WRITES", false)
	v.SetDefault("SCAN_LIMIT", 500)
	v.SetDefault("DOCSTORE_MAX_RETRIES", 5)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_QUEUE", "zine_events")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("AUTH_DEV_TOKEN", "")
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment:    strings.ToLower(v.GetString("APP_ENV")),
			Port:           v.GetString("APP_PORT"),
			FeedPerCreator: v.GetInt("FEED_PER_CREATOR"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("DATABASE_DRIVER"),
			DSN:             v.GetString("DATABASE_DSN"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			LogQueries:      v.GetBool("DATABASE_LOG_QUERIES"),
			AutoMigrate:     v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		DocStore: DocStoreConfig{
			Enabled:    v.GetBool("DOCSTORE_ENABLED"),
			Path:       v.GetString("DOCSTORE_PATH"),
			InMemory:   v.GetBool("DOCSTORE_IN_MEMORY"),
			SyncWrites: v.GetBool("DOCSTORE_SYNC_WRITES"),
			ScanLimit:  v.GetInt("SCAN_LIMIT"),
			MaxRetries: v.GetInt("DOCSTORE_MAX_RETRIES"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   v.GetString("RABBITMQ_URL"),
			Queue: v.GetString("RABBITMQ_QUEUE"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("JWT_SECRET"),
			JWTPublicKey: v.GetString("JWT_PUBLIC_KEY"),
			JWTIssuer:    v.GetString("JWT_ISSUER"),
			JWTAudience:  v.GetString("JWT_AUDIENCE"),
			DevToken:     v.GetString("AUTH_DEV_TOKEN"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q", database.DriverPostgres, database.DriverSQLite)
	}
	if c.Database.DSN == "" {
		return errors.New("DATABASE_DSN must be set")
	}
	if c.DocStore.ScanLimit <= 0 {
		return errors.New("SCAN_LIMIT must be positive")
	}
	if c.DocStore.Enabled && !c.DocStore.InMemory && c.DocStore.Path == "" {
		return errors.New("DOCSTORE_PATH must be set when the document store is enabled")
	}
	if c.DocStore.InMemory {
		// In-memory badger has no value log and rejects values over 1 MiB.
		if !c.IsDevelopment() {
			return errors.New("DOCSTORE_IN_MEMORY is only allowed in development")
		}
		log.Warn().Msg("document store is in memory, documents over 1 MiB will be rejected")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" && c.Auth.JWTPublicKey == "" {
			return errors.New("JWT_SECRET or JWT_PUBLIC_KEY must be set in production")
		}
		if c.Auth.DevToken != "" {
			return errors.New("AUTH_DEV_TOKEN must not be set in production")
		}
		if c.Database.Driver == database.DriverSQLite {
			log.Warn().Msg("running production on sqlite")
		}
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDevelopment reports whether the process runs in development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}
