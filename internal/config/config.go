// Package config provides configuration management for the quest engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mirror   MirrorConfig
	Chain    ChainConfig
	Engine   EngineConfig
	Logging  LoggingConfig
	AdminKey string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ClickHouseConfig holds the optional evaluation archive configuration.
// The archive is disabled when Host is empty.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether the evaluation archive should be used.
func (c *ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// MirrorConfig holds mirror node query configuration
type MirrorConfig struct {
	BaseURL           string
	SwapRouterID      string        // contract id of the SaucerSwap v2 router, e.g. "0.0.3949434"
	LPTokenID         string        // token id of the SaucerSwap LP token
	LPTokenDecimals   int           // decimals of the LP token, for base-unit conversion
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	ResultLimit       int
}

// ChainConfig holds badge contract configuration. Address and OperatorKey are
// required only for chain-writing operations (quest registration, claims).
type ChainConfig struct {
	RPCURL      string
	Address     string // QuestBadges contract address
	OperatorKey string // hex-encoded ECDSA private key
	ChainID     int64
	MintTimeout time.Duration
}

// EngineConfig holds sweep scheduler configuration
type EngineConfig struct {
	SweepInterval time.Duration
	Concurrency   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "quest_engine"),
				User:           getEnv("POSTGRES_USER", "quests"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "quest_engine"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Mirror: MirrorConfig{
			BaseURL:           getEnv("HEDERA_MIRROR_URL", "https://mainnet.mirrornode.hedera.com/api/v1"),
			SwapRouterID:      getEnv("SAUCERSWAP_V2_ROUTER_ID", ""),
			LPTokenID:         getEnv("SAUCERSWAP_LP_TOKEN_ID", ""),
			LPTokenDecimals:   getEnvAsInt("SAUCERSWAP_LP_TOKEN_DECIMALS", 8),
			RequestTimeout:    getEnvAsDuration("MIRROR_REQUEST_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("MIRROR_REQUESTS_PER_SECOND", 10),
			ResultLimit:       getEnvAsInt("MIRROR_RESULT_LIMIT", 200),
		},
		Chain: ChainConfig{
			RPCURL:      getEnv("HEDERA_RPC_URL", "https://mainnet.hashio.io/api"),
			Address:     getEnv("QUEST_BADGES_ADDRESS", ""),
			OperatorKey: getEnv("HEDERA_PRIVATE_KEY", ""),
			ChainID:     int64(getEnvAsInt("HEDERA_CHAIN_ID", 295)),
			MintTimeout: getEnvAsDuration("CHAIN_MINT_TIMEOUT", 2*time.Minute),
		},
		Engine: EngineConfig{
			SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			Concurrency:   getEnvAsInt("SWEEP_CONCURRENCY", 4),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		AdminKey: getEnv("ADMIN_API_KEY", ""),
	}

	if config.Mirror.ResultLimit > 200 {
		// Mirror node hard cap per query.
		config.Mirror.ResultLimit = 200
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
