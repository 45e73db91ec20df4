package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration indicates a configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// LoadConfig loads configuration in order of precedence:
// defaults, then the YAML file at path, then CHATDESK_* environment
// variables. The result is validated before being returned.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CHATDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults plus env cover it.
		if !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "chatdesk.db")

	v.SetDefault("chat.base_url", "https://chat.googleapis.com/v1")
	v.SetDefault("chat.bot_mention", "@Support Ticket Automation")
	v.SetDefault("chat.request_timeout", 30*time.Second)
	v.SetDefault("chat.rate_limit", 5.0)
	v.SetDefault("chat.rate_burst", 10)

	v.SetDefault("ticketing.request_timeout", 30*time.Second)
	v.SetDefault("ticketing.max_retries", 3)
	v.SetDefault("ticketing.retry_base_delay", time.Second)
	v.SetDefault("ticketing.rate_limit", 5.0)
	v.SetDefault("ticketing.rate_burst", 10)

	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("workflow.lookback", 24*time.Hour)
	v.SetDefault("workflow.similarity_threshold", 0.7)
	v.SetDefault("workflow.similarity_tickets", 5)
	v.SetDefault("workflow.max_concurrency", 4)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"process_messages": {Enabled: true, Schedule: "*/5 * * * *"},
		"track_tickets":    {Enabled: true, Schedule: "*/15 * * * *"},
		"sql_maintenance":  {Enabled: true, Schedule: "0 4 * * *"},
	})

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.addr", ":8080")
}
