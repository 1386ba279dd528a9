package config

import "time"

// Config represents the complete application configuration
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	JobDefaults JobDefaultsConfig `mapstructure:"job_defaults"`
	JobTypes    []JobTypeConfig   `mapstructure:"job_types"`
}

// GeneralConfig contains global application settings
type GeneralConfig struct {
	LogLevel           string        `mapstructure:"log_level"`
	TestRun            bool          `mapstructure:"test_run"`
	Timer              time.Duration `mapstructure:"timer"`
	Schedule           string        `mapstructure:"schedule"` // cron expression, overrides timer when set
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	FailOnStartupError bool          `mapstructure:"fail_on_startup_error"`
	Concurrency        int           `mapstructure:"concurrency"`
}

// Broker drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverKue      = "kue"
)

// BrokerConfig selects and configures the job broker
type BrokerConfig struct {
	Driver   string         `mapstructure:"driver"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Kue      KueConfig      `mapstructure:"kue"`
}

// RedisConfig points at a Redis instance holding Kue-layout keys
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PostgresConfig configures the Postgres broker
type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	Migrate bool   `mapstructure:"migrate"`
}

// SQLiteConfig configures the SQLite broker
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// KueConfig points at a Kue JSON API
type KueConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SkipTLS  bool   `mapstructure:"skip_tls"`
}

// JobDefaultsConfig holds settings shared by every job type
type JobDefaultsConfig struct {
	MaxStrikes  int    `mapstructure:"max_strikes"`
	StuckAction string `mapstructure:"stuck_action"` // remove or requeue
}

// JobTypeConfig enables maintenance tasks for one job type
type JobTypeConfig struct {
	Name            string           `mapstructure:"name"`
	WorkDirRoot     string           `mapstructure:"workdir_root"`
	DeactivateStuck StuckConfig      `mapstructure:"deactivate_stuck"`
	PurgeCompleted  TaskToggleConfig `mapstructure:"purge_completed"`
	PurgeFailed     TaskToggleConfig `mapstructure:"purge_failed"`
}

// StuckConfig configures the deactivate-stuck task. Nil fields fall back to
// job_defaults.
type StuckConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Action     *string `mapstructure:"action"`
	MaxStrikes *int    `mapstructure:"max_strikes"`
}

// TaskToggleConfig enables a task
type TaskToggleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StuckAction returns the effective stuck action for the job type
func (j JobTypeConfig) StuckAction(defaults JobDefaultsConfig) string {
	if j.DeactivateStuck.Action != nil && *j.DeactivateStuck.Action != "" {
		return *j.DeactivateStuck.Action
	}
	return defaults.StuckAction
}

// MaxStrikes returns the effective strike threshold for stuck jobs
func (j JobTypeConfig) MaxStrikes(defaults JobDefaultsConfig) int {
	if j.DeactivateStuck.MaxStrikes != nil {
		return *j.DeactivateStuck.MaxStrikes
	}
	return defaults.MaxStrikes
}
