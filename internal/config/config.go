// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/sync.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Provider registry
// --------------------------------------------------------------------------

const (
	ProviderFitbit   = "fitbit"
	ProviderWithings = "withings"
)

// Providers lists supported providers in alert-selection priority order.
var Providers = []string{ProviderWithings, ProviderFitbit}

// --------------------------------------------------------------------------
// Table names — single source of truth, matches schema.sql
// --------------------------------------------------------------------------

const (
	MetricDailyTable       = "metric_daily"
	MetricIntradayTable    = "metric_intraday"
	NotificationStateTable = "notification_state"
	AccountsTable          = "accounts"
	SyncStateTable         = "sync_state"
	UsersTable             = "users"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Provider clients
	FitbitBaseURL      string
	WithingsBaseURL    string
	ProviderTimeout    time.Duration
	ProviderReqPerMin  int
	DefaultTimezone    string
	FallbackDays       int // general metrics lookback
	HRFallbackDays     int // heart-rate lookback
	IntradayResolution string

	// Alerting
	PollInterval     time.Duration
	AlertDelta       float64
	AlertInterval    time.Duration
	AlertFreshness   time.Duration
	SchedulerWorkers int

	// Notifier (SMTP)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Correlation-token store
	RedisURL string
	TokenTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		FitbitBaseURL:      envOr("FITBIT_BASE_URL", "https://api.fitbit.com"),
		WithingsBaseURL:    envOr("WITHINGS_BASE_URL", "https://wbsapi.withings.net"),
		ProviderTimeout:    envDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderReqPerMin:  envInt("PROVIDER_REQUESTS_PER_MINUTE", 60),
		DefaultTimezone:    envOr("DEFAULT_TIMEZONE", "UTC"),
		FallbackDays:       envInt("FALLBACK_DAYS", 3),
		HRFallbackDays:     envInt("HR_FALLBACK_DAYS", 8),
		IntradayResolution: envOr("INTRADAY_RESOLUTION", "1min"),

		PollInterval:     envDuration("POLL_INTERVAL", 300*time.Second),
		AlertDelta:       envFloat("ALERT_DELTA", 5),
		AlertInterval:    envDuration("ALERT_INTERVAL", time.Hour),
		AlertFreshness:   envDuration("ALERT_FRESHNESS", 30*time.Minute),
		SchedulerWorkers: envInt("SCHEDULER_WORKERS", 4),

		SMTPHost: envOr("SMTP_HOST", ""),
		SMTPPort: envInt("SMTP_PORT", 587),
		SMTPUser: envOr("SMTP_USER", ""),
		SMTPPass: envOr("SMTP_PASSWORD", ""),
		SMTPFrom: envOr("FROM_EMAIL", envOr("SMTP_USER", "")),

		RedisURL: envOr("REDIS_URL", ""),
		TokenTTL: envDuration("OAUTH_STATE_TTL", 15*time.Minute),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
