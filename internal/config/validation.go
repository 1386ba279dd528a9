package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for errors and inconsistencies
func (c *Config) Validate() error {
	if err := c.validateGeneral(); err != nil {
		return fmt.Errorf("general config: %w", err)
	}

	if err := c.validateBroker(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	if err := c.validateJobDefaults(); err != nil {
		return fmt.Errorf("job defaults: %w", err)
	}

	if err := c.validateJobTypes(); err != nil {
		return fmt.Errorf("job types: %w", err)
	}

	if len(c.JobTypes) == 0 {
		return fmt.Errorf("at least one job type must be configured")
	}

	return nil
}

func (c *Config) validateGeneral() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !isValidChoice(c.General.LogLevel, validLogLevels) {
		return fmt.Errorf("log_level must be one of: %s", strings.Join(validLogLevels, ", "))
	}

	if c.General.Schedule != "" {
		if _, err := cron.ParseStandard(c.General.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", c.General.Schedule, err)
		}
	} else {
		if c.General.Timer < 1*time.Minute {
			return fmt.Errorf("timer must be at least 1 minute")
		}
		if c.General.Timer > 24*time.Hour {
			return fmt.Errorf("timer must not exceed 24 hours")
		}
	}

	if c.General.RequestTimeout < 1*time.Second {
		return fmt.Errorf("request_timeout must be at least 1 second")
	}
	if c.General.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request_timeout must not exceed 5 minutes")
	}

	if c.General.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	return nil
}

func (c *Config) validateBroker() error {
	b := c.Broker
	switch strings.ToLower(b.Driver) {
	case DriverMemory:
	case DriverRedis:
		if b.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
		if b.Redis.DB < 0 {
			return fmt.Errorf("redis.db cannot be negative")
		}
	case DriverPostgres:
		if b.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required")
		}
	case DriverSQLite:
		if b.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case DriverKue:
		if b.Kue.URL == "" {
			return fmt.Errorf("kue.url is required")
		}
		if !strings.HasPrefix(b.Kue.URL, "http://") && !strings.HasPrefix(b.Kue.URL, "https://") {
			return fmt.Errorf("kue.url must start with http:// or https://")
		}
	default:
		return fmt.Errorf("driver must be one of: %s", strings.Join(drivers, ", "))
	}
	return nil
}

var drivers = []string{DriverMemory, DriverRedis, DriverPostgres, DriverSQLite, DriverKue}

var stuckActions = []string{"remove", "requeue"}

func (c *Config) validateJobDefaults() error {
	if c.JobDefaults.MaxStrikes < 1 {
		return fmt.Errorf("max_strikes must be at least 1")
	}
	if !isValidChoice(c.JobDefaults.StuckAction, stuckActions) {
		return fmt.Errorf("stuck_action must be one of: %s", strings.Join(stuckActions, ", "))
	}
	return nil
}

func (c *Config) validateJobTypes() error {
	names := make(map[string]bool)

	for i, jt := range c.JobTypes {
		if jt.Name == "" {
			return fmt.Errorf("job type #%d must have a name", i)
		}
		if names[jt.Name] {
			return fmt.Errorf("duplicate job type: %s", jt.Name)
		}
		names[jt.Name] = true

		if !isValidChoice(jt.StuckAction(c.JobDefaults), stuckActions) {
			return fmt.Errorf("job type '%s': deactivate_stuck.action must be one of: %s", jt.Name, strings.Join(stuckActions, ", "))
		}
		if jt.MaxStrikes(c.JobDefaults) < 1 {
			return fmt.Errorf("job type '%s': deactivate_stuck.max_strikes must be at least 1", jt.Name)
		}
	}

	return nil
}

// isValidChoice checks if a value is in a list of valid choices
func isValidChoice(value string, choices []string) bool {
	value = strings.ToLower(value)
	for _, choice := range choices {
		if value == choice {
			return true
		}
	}
	return false
}
