package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	StoreDriver        string // postgres or memory
	Database           DatabaseConfig
	RedisURL           string
	JWTSecret          string
	TokenTTL           time.Duration
	ResetTokenTTL      time.Duration
	PasswordCost       int
	CORSAllowedOrigins []string
	CodeMaxAttempts    int
	RateLimitPerMinute int
	StatsInterval      time.Duration
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ClientConfig holds the CLI configuration
type ClientConfig struct {
	APIURL          string
	GeocoderURL     string
	GeocoderTimeout time.Duration
	GeocodeCacheTTL time.Duration
	PollInterval    time.Duration
	TokenDir        string
}

// Load reads the server configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	loadDotEnv()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	resetTTL, err := time.ParseDuration(getEnv("RESET_TOKEN_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESET_TOKEN_TTL: %w", err)
	}

	passwordCost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil || passwordCost < 4 || passwordCost > 31 {
		return nil, fmt.Errorf("invalid BCRYPT_COST: must be between 4 and 31")
	}

	maxAttempts, err := strconv.Atoi(getEnv("CODE_MAX_ATTEMPTS", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid CODE_MAX_ATTEMPTS: %w", err)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("invalid CODE_MAX_ATTEMPTS: must be at least 1")
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	statsInterval, err := time.ParseDuration(getEnv("STATS_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_INTERVAL: %w", err)
	}

	driver := getEnv("STORE_DRIVER", "postgres")
	if driver != "postgres" && driver != "memory" {
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", driver)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StoreDriver: driver,
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "trackpartner"),
			Password: getEnv("DB_PASSWORD", "dev"),
			Name:     getEnv("DB_NAME", "trackpartner"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           tokenTTL,
		ResetTokenTTL:      resetTTL,
		PasswordCost:       passwordCost,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		CodeMaxAttempts:    maxAttempts,
		RateLimitPerMinute: rateLimit,
		StatsInterval:      statsInterval,
	}, nil
}

// LoadClient reads the CLI configuration from environment variables
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	geocoderTimeout, err := time.ParseDuration(getEnv("GEOCODER_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCODER_TIMEOUT: %w", err)
	}

	cacheTTL, err := time.ParseDuration(getEnv("GEOCODE_CACHE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCODE_CACHE_TTL: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive")
	}

	tokenDir := os.Getenv("TRACKPARTNER_HOME")
	if tokenDir == "" {
		home, _ := os.UserHomeDir()
		tokenDir = home + "/.trackpartner"
	}

	return &ClientConfig{
		APIURL:          strings.TrimRight(getEnv("TRACKPARTNER_API", "http://localhost:8080"), "/"),
		GeocoderURL:     getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org/reverse"),
		GeocoderTimeout: geocoderTimeout,
		GeocodeCacheTTL: cacheTTL,
		PollInterval:    pollInterval,
		TokenDir:        tokenDir,
	}, nil
}

func loadDotEnv() {
	if path := getEnv("ENV_FILE", ".env"); path != "" {
		// A missing file is fine; variables already set win over the file.
		_ = godotenv.Load(path)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
