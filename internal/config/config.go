package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Queue      QueueConfig      `mapstructure:"queue" validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker" validate:"required"`
	Classifier ClassifierConfig `mapstructure:"classifier" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"`
	API        APIConfig        `mapstructure:"api" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Version         string        `mapstructure:"version"`
}

// DatabaseConfig selects and configures the task store.
type DatabaseConfig struct {
	// Driver is "postgres" for durable storage or "memory" for local development.
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// QueueConfig selects and configures the work queue.
type QueueConfig struct {
	// Driver is "redis" for a shared broker or "memory" for a single process.
	Driver      string        `mapstructure:"driver" validate:"required,oneof=redis memory"`
	RedisURL    string        `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	Name        string        `mapstructure:"name" validate:"required"`
	Size        int           `mapstructure:"size" validate:"gt=0"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
}

// WorkerConfig controls the worker pool, the retry policy and the
// reconciliation sweep.
type WorkerConfig struct {
	Count          int           `mapstructure:"count" validate:"gt=0"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelay      time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay       time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	RetryJitter    bool          `mapstructure:"retry_jitter"`
	RecoverOnStart bool          `mapstructure:"recover_on_start"`

	// StuckTaskAge enables the reconciliation sweep when positive. Tasks left
	// processing for longer are failed; zero keeps them untouched.
	StuckTaskAge    time.Duration `mapstructure:"stuck_task_age" validate:"gte=0"`
	StalePendingAge time.Duration `mapstructure:"stale_pending_age" validate:"gte=0"`
	SweepSchedule   string        `mapstructure:"sweep_schedule" validate:"required"`
	SweepBatchSize  int           `mapstructure:"sweep_batch_size" validate:"gt=0"`
}

// ClassifierConfig selects the classification backend.
type ClassifierConfig struct {
	// Backend is "http" for the classifier service or "gemini" for the LLM backend.
	Backend string `mapstructure:"backend" validate:"required,oneof=http gemini"`

	URL string `mapstructure:"url" validate:"required_if=Backend http,omitempty,url"`

	GeminiAPIKey string   `mapstructure:"gemini_api_key" validate:"required_if=Backend gemini"`
	GeminiModel  string   `mapstructure:"gemini_model" validate:"required_if=Backend gemini"`
	Labels       []string `mapstructure:"labels" validate:"required_if=Backend gemini,dive,required"`
}

// AuthConfig configures bearer-token verification for the API.
// Tokens are issued elsewhere; an empty secret disables verification.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// APIConfig holds limits applied to submission and listing requests.
type APIConfig struct {
	MaxBatchSize  int `mapstructure:"max_batch_size" validate:"gt=0"`
	MaxTextLength int `mapstructure:"max_text_length" validate:"gt=0"`
	MaxListLimit  int `mapstructure:"max_list_limit" validate:"gt=0"`
}
