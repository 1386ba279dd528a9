package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
	"github.com/jmylchreest/go-jobjanitor/internal/broker/kueapi"
	"github.com/jmylchreest/go-jobjanitor/internal/broker/memory"
	"github.com/jmylchreest/go-jobjanitor/internal/broker/postgres"
	"github.com/jmylchreest/go-jobjanitor/internal/broker/redis"
	"github.com/jmylchreest/go-jobjanitor/internal/broker/sqlite"
	"github.com/jmylchreest/go-jobjanitor/internal/config"
)

// openBroker connects to the configured broker back-end.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (broker.Broker, error) {
	bc := cfg.Broker
	timeout := cfg.General.RequestTimeout

	switch strings.ToLower(bc.Driver) {
	case config.DriverMemory:
		logger.Warn("using in-memory broker, nothing will be reconciled outside this process")
		return memory.New(), nil

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:         bc.Redis.Addr,
			Password:     bc.Redis.Password,
			DB:           bc.Redis.DB,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		})
		return redis.New(client, redis.WithPrefix(bc.Redis.Prefix), redis.WithLogger(logger)), nil

	case config.DriverPostgres:
		openCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		pg, err := postgres.Open(openCtx, bc.Postgres.DSN, postgres.WithTable(bc.Postgres.Table), postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if bc.Postgres.Migrate {
			if err := pg.Migrate(openCtx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		return pg, nil

	case config.DriverSQLite:
		lite, err := sqlite.Open(bc.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return lite, nil

	case config.DriverKue:
		return kueapi.NewClient(kueapi.ClientConfig{
			BaseURL:  bc.Kue.URL,
			Username: bc.Kue.Username,
			Password: bc.Kue.Password,
			Timeout:  timeout,
			SkipTLS:  bc.Kue.SkipTLS,
			Logger:   logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown broker driver %q", bc.Driver)
	}
}
