package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mailer    MailerConfig    `yaml:"mailer"`
	Site      SiteConfig      `yaml:"site"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the send throttle backend settings. Disabled means
// campaigns dispatch without pacing.
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	SendsPerMinute int    `yaml:"sends_per_minute"`
}

// MailerConfig holds outbound email provider settings
type MailerConfig struct {
	Provider  string     `yaml:"provider"` // "ses", "smtp" or "log"
	FromName  string     `yaml:"from_name"`
	FromEmail string     `yaml:"from_email"`
	SES       SESConfig  `yaml:"ses"`
	SMTP      SMTPConfig `yaml:"smtp"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds SMTP relay configuration
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SiteConfig holds the public site settings used to build links in emails
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DispatchConfig tunes the campaign send loop
type DispatchConfig struct {
	Workers            int `yaml:"workers"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	MaxAttempts        int `yaml:"max_attempts"`
}

// SendTimeout returns the per-send timeout as a duration
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// SchedulerConfig controls the scheduled-campaign poller
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
}

// PollInterval returns the poll interval as a duration
func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RateLimitConfig throttles the public subscribe/unsubscribe endpoints
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.SendsPerMinute == 0 {
		cfg.Redis.SendsPerMinute = 600
	}
	if cfg.Mailer.Provider == "" {
		cfg.Mailer.Provider = "log"
	}
	if cfg.Mailer.SES.Region == "" {
		cfg.Mailer.SES.Region = "me-south-1"
	}
	if cfg.Mailer.SES.TimeoutSeconds == 0 {
		cfg.Mailer.SES.TimeoutSeconds = 30
	}
	if cfg.Mailer.SMTP.Port == 0 {
		cfg.Mailer.SMTP.Port = 587
	}
	if cfg.Site.BaseURL == "" {
		cfg.Site.BaseURL = "http://localhost:3000"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 5
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 2
	}
	if cfg.Scheduler.PollIntervalSeconds == 0 {
		cfg.Scheduler.PollIntervalSeconds = 30
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 10
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment.
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
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MAILER_PROVIDER"); v != "" {
		cfg.Mailer.Provider = v
	}
	if v := os.Getenv("MAILER_FROM_EMAIL"); v != "" {
		cfg.Mailer.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mailer.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mailer.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mailer.SES.Region = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Mailer.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Mailer.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Mailer.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Mailer.SMTP.Password = v
	}
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}

	return cfg, nil
}
