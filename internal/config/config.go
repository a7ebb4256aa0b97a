package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidImportTime  = errors.New("import time must be HH:MM")
)

// Defaults applied when a setting is absent.
const (
	DefaultServerPort       = "8080"
	DefaultUserAgent        = "EPGVault/1.0"
	DefaultTimeout          = 5 * time.Minute
	DefaultFetchRetries     = 3
	DefaultFetchBackoff     = 2 * time.Second
	DefaultRetentionDays    = 7
	DefaultLogRetentionDays = 30
	DefaultImportTime       = "03:00"
	DefaultTimezone         = "UTC"
	DefaultBatchSize        = 500

	maxFetchRetries = 10
)

// Config holds application configuration (storage, fetcher, retention and scheduler settings).
// Load fills it from the environment and LoadFromFile from YAML.
type Config struct {
	DatabaseURL string
	ServerPort  string
	RedisURL    string

	UserAgent    string
	Timeout      time.Duration
	FetchRetries int
	FetchBackoff time.Duration

	RetentionDays    int
	LogRetentionDays int
	ImportTime       string
	Timezone         string
	BatchSize        int

	// Location is resolved from Timezone by validate.
	Location *time.Location
}

func defaults() *Config {
	return &Config{
		ServerPort:       DefaultServerPort,
		UserAgent:        DefaultUserAgent,
		Timeout:          DefaultTimeout,
		FetchRetries:     DefaultFetchRetries,
		FetchBackoff:     DefaultFetchBackoff,
		RetentionDays:    DefaultRetentionDays,
		LogRetentionDays: DefaultLogRetentionDays,
		ImportTime:       DefaultImportTime,
		Timezone:         DefaultTimezone,
		BatchSize:        DefaultBatchSize,
	}
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the current directory.
// DATABASE_URL is required; everything else has a default.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := defaults()
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setString(&c.ImportTime, "EPG_IMPORT_TIME")
	setString(&c.Timezone, "EPG_TIMEZONE")

	var err error
	if c.Timeout, err = envDuration("FETCHER_TIMEOUT", c.Timeout); err != nil {
		return nil, err
	}
	if c.FetchBackoff, err = envDuration("FETCHER_BACKOFF", c.FetchBackoff); err != nil {
		return nil, err
	}
	if c.FetchRetries, err = envInt("FETCHER_RETRIES", c.FetchRetries); err != nil {
		return nil, err
	}
	if c.RetentionDays, err = envInt("EPG_RETENTION_DAYS", c.RetentionDays); err != nil {
		return nil, err
	}
	if c.LogRetentionDays, err = envInt("EPG_LOG_RETENTION_DAYS", c.LogRetentionDays); err != nil {
		return nil, err
	}
	if c.BatchSize, err = envInt("EPG_BATCH_SIZE", c.BatchSize); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ImportClock returns the configured daily import hour and minute.
func (c *Config) ImportClock() (hour, minute int, err error) {
	return ParseTimeOfDay(c.ImportTime)
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidImportTime, s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidImportTime, s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidImportTime, s)
	}
	return hour, minute, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if _, _, err := c.ImportClock(); err != nil {
		return err
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", c.RetentionDays)
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = c.RetentionDays
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.FetchRetries > maxFetchRetries {
		c.FetchRetries = maxFetchRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
