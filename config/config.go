package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/* Config é um pacote auxiliar. Poderia ser uma lib externa
 * Values come from an optional .env (toml) file, overridden by environment variables
 */

type Config struct {
	Port                     string `mapstructure:"PORT"`
	LogLevel                 string `mapstructure:"LOG_LEVEL"`
	ProductName              string `mapstructure:"PRODUCT_NAME"`
	DatabaseDriver           string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisAddr                string `mapstructure:"REDIS_ADDR"`
	RedisPassword            string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                  int    `mapstructure:"REDIS_DB"`
	RateLimitEnabled         bool   `mapstructure:"RATE_LIMIT_ENABLED"`
	RoutesFile               string `mapstructure:"ROUTES_FILE"`
	WebhookTimeoutSeconds    int    `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookMaxRetries        int    `mapstructure:"WEBHOOK_MAX_RETRIES"`
	WebhookRetryDelaySeconds int    `mapstructure:"WEBHOOK_RETRY_DELAY_SECONDS"`
	LogRetentionDays         int    `mapstructure:"LOG_RETENTION_DAYS"`
	CleanupSchedule          string `mapstructure:"CLEANUP_SCHEDULE"`
	CronSecret               string `mapstructure:"CRON_SECRET"`
	JWTSecret                string `mapstructure:"JWT_SECRET"`
	AdminToken               string `mapstructure:"ADMIN_TOKEN"`
	LoginPassword            string `mapstructure:"LOGIN_PASSWORD"`
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"LOG_LEVEL":                   "info",
	"PRODUCT_NAME":                "Dispatch",
	"DATABASE_DRIVER":             "sqlite",
	"DATABASE_URL":                "file:webhooks.db?_foreign_keys=on",
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"RATE_LIMIT_ENABLED":          true,
	"ROUTES_FILE":                 "routes.yaml",
	"WEBHOOK_TIMEOUT_SECONDS":     30,
	"WEBHOOK_MAX_RETRIES":         3,
	"WEBHOOK_RETRY_DELAY_SECONDS": 60,
	"LOG_RETENTION_DAYS":          90,
	"CLEANUP_SCHEDULE":            "@daily",
	"CRON_SECRET":                 "",
	"JWT_SECRET":                  "",
	"ADMIN_TOKEN":                 "",
	"LOGIN_PASSWORD":              "",
}

// GetConfig reads .env from the working directory
func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env from dir; a missing file leaves defaults and environment
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	switch strings.ToLower(c.DatabaseDriver) {
	case "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.LogRetentionDays < 1 {
		return fmt.Errorf("LOG_RETENTION_DAYS must be positive")
	}
	return nil
}

// LogRetention returns the cleanup horizon
func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

// RateLimiting reports whether the limiter should enforce
func (c *Config) RateLimiting() bool {
	return c.RateLimitEnabled && c.RedisAddr != ""
}
