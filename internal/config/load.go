package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. MODERATION_DATABASE_URL for database.url.
const EnvPrefix = "MODERATION"

// ErrInvalidConfig is returned when the loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence. configPath may be empty, in
// which case config.yaml is looked up in the working directory and its absence
// is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
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

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	w := cfg.Worker
	if w.MaxDelay > 0 && w.BaseDelay > w.MaxDelay {
		return fmt.Errorf("%w: worker.base_delay (%s) exceeds worker.max_delay (%s)",
			ErrInvalidConfig, w.BaseDelay, w.MaxDelay)
	}

	if w.StuckTaskAge > 0 {
		window := w.MaxExecutionWindow()
		if w.StuckTaskAge <= window {
			return fmt.Errorf("%w: worker.stuck_task_age (%s) must exceed the worst-case execution window (%s)",
				ErrInvalidConfig, w.StuckTaskAge, window)
		}
	}

	return nil
}

// MaxExecutionWindow is the longest a single worker can keep a task in
// processing: every attempt running to its timeout plus every backoff delay.
func (w WorkerConfig) MaxExecutionWindow() time.Duration {
	window := time.Duration(w.MaxAttempts) * w.CallTimeout
	delay := w.BaseDelay
	for i := 1; i < w.MaxAttempts; i++ {
		d := delay
		if w.MaxDelay > 0 && d > w.MaxDelay {
			d = w.MaxDelay
		}
		window += d
		delay *= 2
	}
	return window
}

// setDefaults registers every key so environment variables can override
// values that never appear in a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.version", "0.1.0")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("queue.driver", "redis")
	v.SetDefault("queue.redis_url", "")
	v.SetDefault("queue.name", "classification")
	v.SetDefault("queue.size", 100)
	v.SetDefault("queue.poll_timeout", 5*time.Second)

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.call_timeout", 60*time.Second)
	v.SetDefault("worker.max_attempts", 4)
	v.SetDefault("worker.base_delay", 5*time.Second)
	v.SetDefault("worker.max_delay", 60*time.Second)
	v.SetDefault("worker.retry_jitter", true)
	v.SetDefault("worker.recover_on_start", true)
	v.SetDefault("worker.stuck_task_age", time.Duration(0))
	v.SetDefault("worker.stale_pending_age", 10*time.Minute)
	v.SetDefault("worker.sweep_schedule", "@every 5m")
	v.SetDefault("worker.sweep_batch_size", 100)

	v.SetDefault("classifier.backend", "http")
	v.SetDefault("classifier.url", "http://classifier:8090")
	v.SetDefault("classifier.gemini_api_key", "")
	v.SetDefault("classifier.gemini_model", "gemini-2.0-flash")
	v.SetDefault("classifier.labels", []string{"ham", "spam"})

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("api.max_batch_size", 100)
	v.SetDefault("api.max_text_length", 5000)
	v.SetDefault("api.max_list_limit", 50)
}
