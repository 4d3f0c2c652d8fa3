package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database   DatabaseConfig
	API        APIConfig
	Worker     WorkerConfig
	Redis      RedisConfig
	Validation ValidationConfig
	Auth       AuthConfig
	Logging    LoggingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig holds API server settings
type APIConfig struct {
	Port string
	Host string
}

// WorkerConfig holds worker settings
type WorkerConfig struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	Concurrency  int
}

// RedisConfig holds the Redis connection settings shared by the duplicate
// index, cap counters and rate limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ValidationConfig holds settings for the third-party validation hook
type ValidationConfig struct {
	Timeout time.Duration
}

// AuthConfig guards the stats and admin endpoints; lead ingestion
// authenticates per source via API key instead
type AuthConfig struct {
	Enabled      bool
	SharedSecret string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "leadroute"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			Port: getEnv("API_PORT", "8080"),
			Host: getEnv("API_HOST", "0.0.0.0"),
		},
		Worker: WorkerConfig{
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "5s"), 5*time.Second),
			RetryDelay:   parseDuration(getEnv("WORKER_RETRY_DELAY", "30s"), 30*time.Second),
			Concurrency:  parseInt(getEnv("WORKER_CONCURRENCY", "5"), 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		Validation: ValidationConfig{
			Timeout: parseDuration(getEnv("VALIDATION_TIMEOUT", "5s"), 5*time.Second),
		},
		Auth: AuthConfig{
			Enabled:      parseBool(getEnv("ENABLE_AUTH", "false")),
			SharedSecret: getEnv("SHARED_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are set
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.Auth.Enabled && c.Auth.SharedSecret == "" {
		return fmt.Errorf("SHARED_SECRET is required when ENABLE_AUTH is true")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(value string, defaultValue int) int {
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseBool(value string) bool {
	return value == "true" || value == "1" || value == "yes"
}
