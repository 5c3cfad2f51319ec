package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "CODA"

// ErrValidation is wrapped by every error caused by an invalid configuration value.
var ErrValidation = errors.New("validation failed")

// setDefaults registers the default value of every key. Viper only maps
// environment variables onto keys it knows about, so every field needs one.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://coda.io/apis/v1")
	v.SetDefault("api.key", "")
	v.SetDefault("api.key_file", "apikey.key")
	v.SetDefault("api.page_limit", 25)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay", "1s")

	v.SetDefault("session.web_url", "https://coda.io")
	v.SetDefault("session.cookie_file", "cookie_bar.ck")
	v.SetDefault("session.cookie_domain", "coda.io")

	v.SetDefault("pool.max_concurrency", 10)
	v.SetDefault("pool.max_awaiting", 10)
	v.SetDefault("pool.order", "fifo")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// Load configuration from environment variables and optionally a config file.
// Environment variables (CODA_ prefix, e.g. CODA_POOL_MAX_CONCURRENCY) take
// precedence over values from the file. An empty configFile skips the file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
