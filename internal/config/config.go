// Package config provides environment-aware configuration management for
// the dispatch core, following the env-driven Config struct pattern of the
// platform's other services (godotenv for local dev overrides, typed
// accessors, fail-fast Validate for production).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds every environment option recognized by spec.md §6.
type Config struct {
	Env Environment

	// Storage.
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration
	KeyValueURL      string // Redis

	// Platform credentials / endpoints.
	BotAPIToken     string
	WebChatBaseURL  string
	AdminAPIKey     string
	// WebhookSharedSecret authenticates the forwarded-request signature the
	// (out-of-scope) platform adapters attach to every inbound webhook they
	// relay to this core, per spec.md §4.5's "pre-verified source signature"
	// contract.
	WebhookSharedSecret string

	// Auth.
	JWTSecret   string
	JWTAlgorithm string
	JWTAccessTTL time.Duration
	OTPTTL       time.Duration

	// CORS.
	CORSAllowedOrigins []string

	// Outbox.
	OutboxMaxRetries        int
	OutboxMaxBackoffSeconds int
	WorkerPrefetch          int

	// Logging.
	LogLevel  string
	LogFormat string

	// Misc.
	TimeZone                string
	EnableDebugEndpoints    bool
	FeatureInteractiveWebChat bool

	HTTPAddr string
}

// Load reads configuration from the environment, optionally preceded by a
// `.env.<environment>` file (APP_ENV selects it; missing files are not an
// error, mirroring the teacher's godotenv.Load semantics).
func Load() (*Config, error) {
	envStr := strings.TrimSpace(os.Getenv("APP_ENV"))
	if envStr == "" {
		envStr = string(Development)
	}
	env := Environment(envStr)
	if env != Development && env != Testing && env != Production {
		return nil, fmt.Errorf("invalid APP_ENV: %s (must be development, testing, or production)", envStr)
	}

	_ = godotenv.Load(fmt.Sprintf(".env.%s", env))

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	idleTimeout, err := time.ParseDuration(getEnv("DB_IDLE_TIMEOUT", "5m"))
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idleTimeout
	c.KeyValueURL = getEnv("REDIS_URL", "redis://localhost:6379/0")

	c.BotAPIToken = getEnv("BOT_API_TOKEN", "")
	c.WebChatBaseURL = getEnv("WEBCHAT_BASE_URL", "")
	c.AdminAPIKey = getEnv("ADMIN_API_KEY", "")
	c.WebhookSharedSecret = getEnv("WEBHOOK_SHARED_SECRET", "")

	c.JWTSecret = getEnv("JWT_SECRET_KEY", "")
	c.JWTAlgorithm = getEnv("JWT_ALGORITHM", "HS256")
	accessTTL, err := time.ParseDuration(getEnv("JWT_ACCESS_TTL", "480m"))
	if err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_TTL: %w", err)
	}
	c.JWTAccessTTL = accessTTL
	otpTTL, err := time.ParseDuration(getEnv("OTP_TTL", "300s"))
	if err != nil {
		return fmt.Errorf("invalid OTP_TTL: %w", err)
	}
	c.OTPTTL = otpTTL

	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins != "" {
		c.CORSAllowedOrigins = strings.Split(origins, ",")
	}

	c.OutboxMaxRetries = getIntEnv("MAX_RETRIES", 5)
	c.OutboxMaxBackoffSeconds = getIntEnv("MAX_BACKOFF_SECONDS", 3600)
	c.WorkerPrefetch = getIntEnv("WORKER_PREFETCH", 1)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.TimeZone = getEnv("TIME_ZONE", "Asia/Jerusalem")
	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", c.Env != Production)
	c.FeatureInteractiveWebChat = getBoolEnv("FEATURE_INTERACTIVE_WEBCHAT", false)

	c.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	return nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate enforces the fail-fast production requirements of spec.md §4.9:
// a JWT secret is mandatory in production, and the admin debug surface must
// be disabled there.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET_KEY is required in production")
		}
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if strings.TrimSpace(c.AdminAPIKey) == "" {
			return fmt.Errorf("ADMIN_API_KEY is required in production")
		}
		if strings.TrimSpace(c.WebhookSharedSecret) == "" {
			return fmt.Errorf("WEBHOOK_SHARED_SECRET is required in production")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
