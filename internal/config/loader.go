package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JOBJANITOR_GENERAL_TEST_RUN.
const EnvPrefix = "JOBJANITOR"

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configPath == "" {
		for _, p := range []string{"config.yaml", "config.yml", "/app/config.yaml"} {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	// No file is fine: defaults plus env vars
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.test_run", false)
	v.SetDefault("general.timer", 5*time.Minute)
	v.SetDefault("general.schedule", "")
	v.SetDefault("general.request_timeout", 30*time.Second)
	v.SetDefault("general.fail_on_startup_error", false)
	v.SetDefault("general.concurrency", 8)

	v.SetDefault("broker.driver", DriverRedis)
	v.SetDefault("broker.redis.addr", "localhost:6379")
	v.SetDefault("broker.redis.password", "")
	v.SetDefault("broker.redis.db", 0)
	v.SetDefault("broker.redis.prefix", "q")
	v.SetDefault("broker.postgres.dsn", "")
	v.SetDefault("broker.postgres.table", "jobs")
	v.SetDefault("broker.postgres.migrate", false)
	v.SetDefault("broker.sqlite.path", "jobs.db")
	v.SetDefault("broker.kue.url", "http://localhost:3000")
	v.SetDefault("broker.kue.username", "")
	v.SetDefault("broker.kue.password", "")
	v.SetDefault("broker.kue.skip_tls", false)

	// one strike acts on the first sighting
	v.SetDefault("job_defaults.max_strikes", 1)
	v.SetDefault("job_defaults.stuck_action", "remove")

	v.SetDefault("job_types", []JobTypeConfig{})
}
