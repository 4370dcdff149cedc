package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cart storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds application configuration
type Config struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string
	LogFormat   string

	CartStorage string
	DatabaseURL string
	RedisURL    string
	CartTTL     time.Duration
	CartIdleTTL time.Duration
	RabbitMQURL string // empty disables the checkout consumer

	APIBaseURL         string
	JWTSecret          string // empty means tokens are decoded without signature checks
	TokenExpiryBuffer  time.Duration
	AccessTokenMaxAge  time.Duration
	RefreshTokenMaxAge time.Duration
	AdminRole          string
	SupportedLocales   []string

	AllowedOrigins    string
	StaticDir         string
	OpenAPISpecPath   string
	OpenAPIValidation bool
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Load reads configuration from the environment (and .env when present) and validates it
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var errs []error
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),

		CartStorage: strings.ToLower(getEnv("CART_STORAGE", StorageMemory)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CartTTL:     getDuration("CART_TTL", 7*24*time.Hour, &errs),
		CartIdleTTL: getDuration("CART_IDLE_TTL", 30*time.Minute, &errs),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:4000"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenExpiryBuffer:  getDuration("TOKEN_EXPIRY_BUFFER", 5*time.Second, &errs),
		AccessTokenMaxAge:  getDuration("ACCESS_TOKEN_MAX_AGE", 15*time.Minute, &errs),
		RefreshTokenMaxAge: getDuration("REFRESH_TOKEN_MAX_AGE", 7*24*time.Hour, &errs),
		AdminRole:          getEnv("ADMIN_ROLE", "ADMIN"),
		SupportedLocales:   splitList(getEnv("SUPPORTED_LOCALES", "en,vi")),

		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		StaticDir:         getEnv("STATIC_DIR", "./web"),
		OpenAPISpecPath:   getEnv("OPENAPI_SPEC_PATH", "./api/openapi.yaml"),
		OpenAPIValidation: getBool("OPENAPI_VALIDATION", true, &errs),
		RateLimitRPS:      getFloat("RATE_LIMIT_RPS", 5, &errs),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 10, &errs),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	switch c.CartStorage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when CART_STORAGE=%s", StoragePostgres)
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CART_STORAGE=%s", StorageRedis)
		}
	default:
		return fmt.Errorf("CART_STORAGE must be one of memory, postgres, redis (got %q)", c.CartStorage)
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL (got %q)", c.APIBaseURL)
	}

	if c.TokenExpiryBuffer < 0 {
		return fmt.Errorf("TOKEN_EXPIRY_BUFFER must not be negative")
	}
	if c.AccessTokenMaxAge <= 0 || c.RefreshTokenMaxAge <= 0 {
		return fmt.Errorf("token cookie max ages must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	// Production environment requires verified tokens
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production (got %d)", len(c.JWTSecret))
		}

		if c.AllowedOrigins != "" && strings.Contains(c.AllowedOrigins, "http://") {
			slog.Warn("ALLOWED_ORIGINS contains non-HTTPS origins in production")
		}
	} else if c.JWTSecret == "" {
		slog.Info("JWT_SECRET not set; access tokens are decoded without signature verification")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Origins returns ALLOWED_ORIGINS as a list
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
