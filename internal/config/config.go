package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the oracle service
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// OraclesPath points at the YAML file defining the oracles to run
	OraclesPath string

	// Database
	Database   DatabaseConfig
	EventStore EventStoreConfig

	// Redis
	Redis     RedisConfig
	Publisher PublisherConfig

	// Services
	Keeper KeeperConfig
	API    APIConfig
}

// DatabaseConfig holds PostgreSQL configuration for the event log
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// EventStoreConfig holds the event log write queue configuration
type EventStoreConfig struct {
	WriteBatchSize int
	WriteInterval  time.Duration
	WriteQueueSize int
	MaxRetries     int
	RetryDelay     time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// PublisherConfig holds configuration for publishing oracle events to Redis
type PublisherConfig struct {
	StreamName     string
	AlertChannel   string
	PriceKeyPrefix string
	PriceTTL       time.Duration
	BatchSize      int
	BatchTimeout   time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// KeeperConfig holds configuration for the update loop
type KeeperConfig struct {
	Interval       time.Duration
	UpdateTimeout  time.Duration
	MaxConcurrency int
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port            int
	HealthCheckPort int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	AllowedOrigins  []string
	RateLimitRPS    int // Requests per second per client, 0 disables
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		OraclesPath: getEnv("ORACLE_CONFIG_PATH", "config/oracles.yaml"),
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "price_oracle"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		EventStore: EventStoreConfig{
			WriteBatchSize: getEnvAsInt("EVENT_STORE_WRITE_BATCH_SIZE", 100),
			WriteInterval:  getEnvAsDuration("EVENT_STORE_WRITE_INTERVAL", 5*time.Second),
			WriteQueueSize: getEnvAsInt("EVENT_STORE_WRITE_QUEUE_SIZE", 1000),
			MaxRetries:     getEnvAsInt("EVENT_STORE_MAX_RETRIES", 3),
			RetryDelay:     getEnvAsDuration("EVENT_STORE_RETRY_DELAY", 1*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Publisher: PublisherConfig{
			StreamName:     getEnv("PUBLISHER_STREAM_NAME", "oracle.events"),
			AlertChannel:   getEnv("PUBLISHER_ALERT_CHANNEL", "oracle.alerts"),
			PriceKeyPrefix: getEnv("PUBLISHER_PRICE_KEY_PREFIX", "oracle:price:"),
			PriceTTL:       getEnvAsDuration("PUBLISHER_PRICE_TTL", 0),
			BatchSize:      getEnvAsInt("PUBLISHER_BATCH_SIZE", 100),
			BatchTimeout:   getEnvAsDuration("PUBLISHER_BATCH_TIMEOUT", 500*time.Millisecond),
			RetryAttempts:  getEnvAsInt("PUBLISHER_RETRY_ATTEMPTS", 3),
			RetryDelay:     getEnvAsDuration("PUBLISHER_RETRY_DELAY", 100*time.Millisecond),
		},
		Keeper: KeeperConfig{
			Interval:       getEnvAsDuration("KEEPER_INTERVAL", 1*time.Minute),
			UpdateTimeout:  getEnvAsDuration("KEEPER_UPDATE_TIMEOUT", 10*time.Second),
			MaxConcurrency: getEnvAsInt("KEEPER_MAX_CONCURRENCY", 8),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			HealthCheckPort: getEnvAsInt("API_HEALTH_PORT", 8091),
			ReadTimeout:     getEnvAsDuration("API_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("API_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsStringSlice("API_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OraclesPath == "" {
		return fmt.Errorf("ORACLE_CONFIG_PATH is required")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when DB_ENABLED is set")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Keeper.Interval <= 0 {
		return fmt.Errorf("KEEPER_INTERVAL must be positive")
	}
	if c.Keeper.MaxConcurrency < 1 {
		return fmt.Errorf("KEEPER_MAX_CONCURRENCY must be at least 1")
	}
	if c.API.Port == c.API.HealthCheckPort {
		return fmt.Errorf("API_PORT and API_HEALTH_PORT must differ")
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

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
