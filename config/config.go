// Package config loads process configuration from the environment.
//
// Every variable carries the DUES_ prefix (DUES_PORT, DUES_DB_PATH, ...).
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

const envPrefix = "DUES"

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/dues.db" validate:"required"`
	Env      string `envconfig:"ENV" default:"production" validate:"oneof=development production test"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	// Scheduler
	SchedulerEnabled bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	GenerateSchedule string `envconfig:"GENERATE_SCHEDULE" default:"0 5 * * *"`
	OverdueSchedule  string `envconfig:"OVERDUE_SCHEDULE" default:"30 0 * * *"`
	ReminderSchedule string `envconfig:"REMINDER_SCHEDULE" default:"0 10 * * *"`

	// Retries of a failed scheduled run, exponential backoff between them
	JobRetries       int           `envconfig:"JOB_RETRIES" default:"3" validate:"min=0,max=10"`
	JobRetryDelay    time.Duration `envconfig:"JOB_RETRY_DELAY" default:"1m" validate:"gt=0"`
	JobRetryMaxDelay time.Duration `envconfig:"JOB_RETRY_MAX_DELAY" default:"15m" validate:"gtefield=JobRetryDelay"`

	// Run lock across replicas; empty RedisURL disables it
	RedisURL   string        `envconfig:"REDIS_URL"`
	LockPrefix string        `envconfig:"LOCK_PREFIX" default:"dues:lock"`
	LockTTL    time.Duration `envconfig:"LOCK_TTL" default:"30m" validate:"gt=0"`

	// Notifications
	Locale             string `envconfig:"LOCALE" default:"en"`
	PushBackend        string `envconfig:"PUSH_BACKEND" default:"log" validate:"oneof=log pubsub"`
	PubSubProject      string `envconfig:"PUBSUB_PROJECT" validate:"required_if=PushBackend pubsub"`
	PubSubTopic        string `envconfig:"PUBSUB_TOPIC" default:"dues-push"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`

	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	SeedFile       string `envconfig:"SEED_FILE"`
}

// Load reads .env (if any) and the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints, the timezone and every cron spec.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for name, spec := range map[string]string{
		"GENERATE_SCHEDULE": c.GenerateSchedule,
		"OVERDUE_SCHEDULE":  c.OverdueSchedule,
		"REMINDER_SCHEDULE": c.ReminderSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid config: %s_%s %q: %w", envPrefix, name, spec, err)
		}
	}
	return nil
}

// Location is the time zone the scheduler runs in and "today" is taken from.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %s_TIMEZONE %q: %w", envPrefix, c.Timezone, err)
	}
	return loc, nil
}
