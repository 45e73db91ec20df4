// Package config manages application configuration from a YAML file,
// CHATDESK_* environment variables, and default values.
package config

import "time"

// Config defines the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Ticketing TicketingConfig `mapstructure:"ticketing"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds settings for the local SQLite correlation cache.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ChatConfig holds Google Chat API settings.
type ChatConfig struct {
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	Token          string        `mapstructure:"token"           validate:"required"`
	SpaceID        string        `mapstructure:"space_id"        validate:"required"`
	BotMention     string        `mapstructure:"bot_mention"     validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=5m"`
	RateLimit      float64       `mapstructure:"rate_limit"      validate:"gt=0"`
	RateBurst      int           `mapstructure:"rate_burst"      validate:"gt=0"`
}

// TicketingConfig holds ServiceNow API settings.
type TicketingConfig struct {
	InstanceURL    string        `mapstructure:"instance_url"     validate:"required,url"`
	Username       string        `mapstructure:"username"         validate:"required"`
	Password       string        `mapstructure:"password"         validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  validate:"min=1s,max=5m"`
	MaxRetries     int           `mapstructure:"max_retries"      validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"min=100ms,max=1m"`
	RateLimit      float64       `mapstructure:"rate_limit"       validate:"gt=0"`
	RateBurst      int           `mapstructure:"rate_burst"       validate:"gt=0"`
}

// GeminiConfig holds settings for the Gemini AI client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"             validate:"required"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=1,max=300"`
}

// WorkflowConfig tunes the message processing pipeline. The similarity
// threshold and lookback window are deliberately configuration, not
// constants: they bound the probabilistic duplicate tier.
type WorkflowConfig struct {
	Lookback            time.Duration `mapstructure:"lookback"             validate:"min=1m,max=168h"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" validate:"min=0,max=1"`
	SimilarityTickets   int           `mapstructure:"similarity_tickets"   validate:"min=1,max=50"`
	MaxConcurrency      int           `mapstructure:"max_concurrency"      validate:"min=1,max=64"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// WebhookConfig configures the inbound status-callback HTTP server.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}
