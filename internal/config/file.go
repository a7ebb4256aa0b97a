package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	ServerPort       string `yaml:"server_port"`
	RedisURL         string `yaml:"redis_url"`
	UserAgent        string `yaml:"user_agent"`
	Timeout          string `yaml:"timeout"`
	FetchRetries     *int   `yaml:"fetch_retries"`
	FetchBackoff     string `yaml:"fetch_backoff"`
	RetentionDays    int    `yaml:"retention_days"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	ImportTime       string `yaml:"import_time"`
	Timezone         string `yaml:"timezone"`
	BatchSize        int    `yaml:"batch_size"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := defaults()
	c.DatabaseURL = f.DatabaseURL
	c.RedisURL = f.RedisURL
	if f.ServerPort != "" {
		c.ServerPort = f.ServerPort
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
		}
		c.Timeout = d
	}
	if f.FetchBackoff != "" {
		d, err := time.ParseDuration(f.FetchBackoff)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch_backoff %q: %w", f.FetchBackoff, err)
		}
		c.FetchBackoff = d
	}
	if f.FetchRetries != nil {
		c.FetchRetries = *f.FetchRetries
	}
	if f.RetentionDays != 0 {
		c.RetentionDays = f.RetentionDays
	}
	if f.LogRetentionDays != 0 {
		c.LogRetentionDays = f.LogRetentionDays
	}
	if f.ImportTime != "" {
		c.ImportTime = f.ImportTime
	}
	if f.Timezone != "" {
		c.Timezone = f.Timezone
	}
	if f.BatchSize != 0 {
		c.BatchSize = f.BatchSize
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
