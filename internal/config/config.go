package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatcher.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Mailgun  MailgunConfig  `yaml:"mailgun"`
	SES      SESConfig      `yaml:"ses"`
	Limits   LimitsConfig   `yaml:"limits"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// ServerConfig holds the operational HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MailerConfig selects the delivery provider.
type MailerConfig struct {
	Provider string `yaml:"provider"` // "mailgun" or "ses"
	FromName string `yaml:"from_name"`
	From     string `yaml:"from"`
}

// MailgunConfig holds Mailgun API configuration.
type MailgunConfig struct {
	APIKey  string `yaml:"api_key"`
	Domain  string `yaml:"domain"`
	BaseURL string `yaml:"base_url"`
}

// SESConfig holds AWS SES API configuration.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// LimitsConfig holds the shared send-rate window.
type LimitsConfig struct {
	SendCeiling   int `yaml:"send_ceiling"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the configured rate window as a duration.
func (c LimitsConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// DispatchConfig holds the batch dispatcher's timing policy.
type DispatchConfig struct {
	ThrottleCooldownSeconds int `yaml:"throttle_cooldown_seconds"`
	LockTTLSeconds          int `yaml:"lock_ttl_seconds"`
	RecipientCacheTTLHours  int `yaml:"recipient_cache_ttl_hours"`
	Workers                 int `yaml:"workers"`
	PumpIntervalSeconds     int `yaml:"pump_interval_seconds"`
}

// ThrottleCooldown returns the provider-throttle backoff as a duration.
func (c DispatchConfig) ThrottleCooldown() time.Duration {
	return time.Duration(c.ThrottleCooldownSeconds) * time.Second
}

// LockTTL returns the campaign lock lifetime as a duration.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// RecipientCacheTTL returns the recipient cache lifetime as a duration.
func (c DispatchConfig) RecipientCacheTTL() time.Duration {
	return time.Duration(c.RecipientCacheTTLHours) * time.Hour
}

// PumpInterval returns how often delayed jobs are promoted.
func (c DispatchConfig) PumpInterval() time.Duration {
	return time.Duration(c.PumpIntervalSeconds) * time.Second
}

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Mailer.Provider == "" {
		cfg.Mailer.Provider = "mailgun"
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net/v3"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Limits.SendCeiling == 0 {
		cfg.Limits.SendCeiling = 100
	}
	if cfg.Limits.WindowSeconds == 0 {
		cfg.Limits.WindowSeconds = 3600
	}
	if cfg.Dispatch.ThrottleCooldownSeconds == 0 {
		cfg.Dispatch.ThrottleCooldownSeconds = 7200
	}
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 3600
	}
	if cfg.Dispatch.RecipientCacheTTLHours == 0 {
		cfg.Dispatch.RecipientCacheTTLHours = 24
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.PumpIntervalSeconds == 0 {
		cfg.Dispatch.PumpIntervalSeconds = 5
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("MAILER_PROVIDER"); v != "" {
		cfg.Mailer.Provider = v
	}
	if v := os.Getenv("MAILER_FROM"); v != "" {
		cfg.Mailer.From = v
	}
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		cfg.Mailgun.APIKey = v
	}
	if v := os.Getenv("MAILGUN_DOMAIN"); v != "" {
		cfg.Mailgun.Domain = v
	}
	if v := os.Getenv("MAILGUN_BASE_URL"); v != "" {
		cfg.Mailgun.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("EMAIL_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.SendCeiling = n
		}
	}
	if v := os.Getenv("EMAIL_RATE_LIMIT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limits.WindowSeconds = n
		}
	}

	return cfg, nil
}
