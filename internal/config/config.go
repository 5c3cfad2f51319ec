package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	API     APIConfig     `mapstructure:"api" validate:"required"`
	Session SessionConfig `mapstructure:"session" validate:"required"`
	Pool    PoolConfig    `mapstructure:"pool" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
}

// APIConfig contains the settings for the remote document API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// Key overrides the key file when set (CODA_API_KEY)
	Key        string        `mapstructure:"key"`
	KeyFile    string        `mapstructure:"key_file" validate:"required"`
	PageLimit  int           `mapstructure:"page_limit" validate:"required,gt=0,lte=100"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// SessionConfig contains the browser session settings used to read data that
// the API does not expose, such as workspace names.
type SessionConfig struct {
	WebURL       string `mapstructure:"web_url" validate:"required,url"`
	CookieFile   string `mapstructure:"cookie_file"`
	CookieDomain string `mapstructure:"cookie_domain" validate:"required"`
}

// PoolConfig contains the task pool limits.
type PoolConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency" validate:"required,gt=0"`
	MaxAwaiting    int    `mapstructure:"max_awaiting" validate:"required,gt=0"`
	Order          string `mapstructure:"order" validate:"required,oneof=fifo lifo"`
}

// LogConfig contains the logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}
