package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Telegram Bot
	Telegram TelegramConfig

	// Diary portal API
	Diary DiaryConfig

	// Key store
	Storage StorageConfig

	// Feature Flags
	Features *FeatureFlags

	// Observability
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone for diary date arithmetic (default: Europe/Moscow).
	// The school portal thinks in Moscow wall-clock time regardless of
	// where the bot is deployed.
	Timezone string
	Location *time.Location

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// TelegramConfig holds Telegram Bot settings.
type TelegramConfig struct {
	// Bot token from @BotFather
	Token string

	// AdminUserID is the bot owner: sees /admin, issues and revokes keys,
	// and is exempt from rate limiting. Read from ADMIN_USER_ID, falling
	// back to the first entry of the legacy ALLOWED_USER_ID list that
	// predates the key store.
	AdminUserID int64

	// Update processing
	MaxConcurrentUpdates    int
	UpdateTimeout           time.Duration
	GracefulShutdownTimeout time.Duration
}

// DiaryConfig holds the regional diary portal API settings.
type DiaryConfig struct {
	// Base URL of the portal
	BaseURL string

	// Bearer token issued by the portal; expires and has to be refreshed
	// by hand
	BearerToken string

	// Cookie is an optional raw Cookie header some deployments require
	// alongside the bearer token
	Cookie string

	// Identity of the diary account the bot reads
	StudentID   string
	ProfileID   string
	ProfileType string // usually "student"
	Subsystem   string // X-mes-subsystem header, usually "familyweb"

	// Outbound request behavior
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// StorageConfig holds key store settings.
type StorageConfig struct {
	// DataFile is the path of the single JSON document holding keys and
	// authorized users
	DataFile string
}

// ObservabilityConfig holds logging and the ops HTTP server settings.
type ObservabilityConfig struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// Ops HTTP server (health, readiness, metrics, stats)
	HTTPHost string
	HTTPPort int

	// Prometheus /metrics endpoint
	MetricsEnabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.App = loadAppConfig()
	cfg.Telegram = loadTelegramConfig()
	cfg.Diary = loadDiaryConfig()
	cfg.Storage = loadStorageConfig()
	cfg.Features = LoadFeatureFlags()
	cfg.Observability = loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("TIMEZONE", "Europe/Moscow")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		// No tzdata on the host is not fatal: the portal's zone is fixed
		// UTC+3 anyway.
		loc = timeutil.MoscowTZ
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "dnevnik-homework-bot"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "1.0.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadTelegramConfig() TelegramConfig {
	adminID := getEnvInt64("ADMIN_USER_ID", 0)
	if adminID == 0 {
		// Legacy deployments configured a comma-separated allow-list.
		// The key store replaced it; the first entry becomes the owner.
		if legacy := getEnvInt64Slice("ALLOWED_USER_ID", nil); len(legacy) > 0 {
			adminID = legacy[0]
		}
	}

	return TelegramConfig{
		Token:                   getEnv("TG_BOT_TOKEN", ""),
		AdminUserID:             adminID,
		MaxConcurrentUpdates:    getEnvInt("TELEGRAM_MAX_CONCURRENT_UPDATES", 32),
		UpdateTimeout:           getEnvDuration("TELEGRAM_UPDATE_TIMEOUT", 45*time.Second),
		GracefulShutdownTimeout: getEnvDuration("TELEGRAM_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func loadDiaryConfig() DiaryConfig {
	return DiaryConfig{
		BaseURL:        getEnv("AUTHEDU_BASE_URL", "https://authedu.mosreg.ru"),
		BearerToken:    getEnv("AUTHEDU_BEARER", ""),
		Cookie:         getEnv("AUTHEDU_COOKIE", ""),
		StudentID:      getEnv("STUDENT_ID", ""),
		ProfileID:      getEnv("PROFILE_ID", ""),
		ProfileType:    getEnv("PROFILE_TYPE", "student"),
		Subsystem:      getEnv("X_MES_SUBSYSTEM", "familyweb"),
		RequestTimeout: getEnvDuration("AUTHEDU_REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:     getEnvInt("AUTHEDU_MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("AUTHEDU_RETRY_BASE_DELAY", 1*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		DataFile: getEnv("DATA_FILE", "data.json"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		HTTPHost:       getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.Token == "" {
		errs = append(errs, "TG_BOT_TOKEN is required")
	}

	if c.Telegram.AdminUserID == 0 {
		errs = append(errs, "ADMIN_USER_ID is required (or legacy ALLOWED_USER_ID)")
	}

	if c.Diary.BearerToken == "" {
		errs = append(errs, "AUTHEDU_BEARER is required")
	}

	if c.Diary.StudentID == "" {
		errs = append(errs, "STUDENT_ID is required")
	}

	if c.Diary.ProfileID == "" {
		errs = append(errs, "PROFILE_ID is required")
	}

	if c.Storage.DataFile == "" {
		errs = append(errs, "DATA_FILE must not be empty")
	}

	if c.Observability.HTTPPort < 0 || c.Observability.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be 0-65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvInt64Slice(key string, defaultVal []int64) []int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, i)
	}
	return result
}
