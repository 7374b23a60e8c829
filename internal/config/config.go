package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort     string `mapstructure:"APP_PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Auth: HS256 JWTs and/or static bearer tokens for operators.
	JWTHMACSecret string `mapstructure:"JWT_HMAC_SECRET"`
	StaticTokens  string `mapstructure:"STATIC_TOKENS"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	StripeWebhookSecret    string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeWebhookTolerance time.Duration `mapstructure:"STRIPE_WEBHOOK_TOLERANCE"`

	CalendarSyncWindowDays int           `mapstructure:"CALENDAR_SYNC_WINDOW_DAYS"`
	CalendarRefreshMargin  time.Duration `mapstructure:"CALENDAR_REFRESH_MARGIN"`
	CalendarSyncCron       string        `mapstructure:"CALENDAR_SYNC_CRON"`

	// WorkerMetricsPort serves /metrics from the sync worker. An empty value in
	// config.yaml disables it.
	WorkerMetricsPort string `mapstructure:"WORKER_METRICS_PORT"`

	MaxRequestsPerMin  int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

var defaults = map[string]any{
	"APP_PORT":                  "8080",
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"DATABASE_URL":              "",
	"JWT_HMAC_SECRET":           "",
	"STATIC_TOKENS":             "",
	"GOOGLE_CLIENT_ID":          "",
	"GOOGLE_CLIENT_SECRET":      "",
	"GOOGLE_REDIRECT_URL":       "",
	"REDIS_ADDR":                "localhost:6379",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"STRIPE_WEBHOOK_SECRET":     "",
	"STRIPE_WEBHOOK_TOLERANCE":  "5m",
	"CALENDAR_SYNC_WINDOW_DAYS": 90,
	"CALENDAR_REFRESH_MARGIN":   "5m",
	"CALENDAR_SYNC_CRON":        "@daily",
	"WORKER_METRICS_PORT":       "9091",
	"MAX_REQUESTS_PER_MIN":      120,
	"CORS_ALLOWED_ORIGINS":      "*",
}

// Load reads config.yaml from the working directory or ./config when present
// and lets environment variables override it.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the settings the API server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL required"))
	}
	if c.JWTHMACSecret == "" && len(c.StaticTokenList()) == 0 {
		errs = append(errs, errors.New("JWT_HMAC_SECRET or STATIC_TOKENS required"))
	}
	if c.CalendarSyncWindowDays <= 0 {
		errs = append(errs, errors.New("CALENDAR_SYNC_WINDOW_DAYS must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) StaticTokenList() []string {
	return splitList(c.StaticTokens)
}

func (c Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func (c Config) SyncWindow() time.Duration {
	return time.Duration(c.CalendarSyncWindowDays) * 24 * time.Hour
}

// GoogleConfigured reports whether the calendar integration can be offered.
func (c Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
