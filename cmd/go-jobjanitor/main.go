package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"github.com/jmylchreest/go-jobjanitor/internal/config"
	"github.com/jmylchreest/go-jobjanitor/internal/logging"
	"github.com/jmylchreest/go-jobjanitor/internal/maintenance"
	"github.com/jmylchreest/go-jobjanitor/internal/maintenance/reconcile"
	"github.com/jmylchreest/go-jobjanitor/internal/strikes"
	"github.com/jmylchreest/go-jobjanitor/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml or /app/config.yaml)")
	dataDir := flag.String("data", "./data", "Directory for persistent data (strikes)")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Banner())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// env vars override config
	logLevel := cfg.General.LogLevel
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		logLevel = envLevel
	}
	logFormat := "json"
	if envFormat := os.Getenv("LOG_FORMAT"); envFormat != "" {
		logFormat = envFormat
	}
	logger := logging.Setup(logLevel, logFormat)
	for _, task := range splitList(os.Getenv("LOG_DEBUG_TASKS")) {
		logging.AddTaskFilter(task)
	}
	for _, jobType := range splitList(os.Getenv("LOG_DEBUG_TYPES")) {
		logging.AddJobTypeFilter(jobType)
	}

	info := version.Get()
	logger.Info("starting go-jobjanitor",
		"version", info.Version,
		"commit", info.Commit,
		"built", info.BuildDate,
		"data_dir", *dataDir,
		"broker", cfg.Broker.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBroker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open broker", "driver", cfg.Broker.Driver, "error", err)
		os.Exit(1)
	}

	st := strikes.NewHandler(filepath.Join(*dataDir, "strikes.json"), logger)
	manager := maintenance.NewManager(b, st, logger)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Error("failed to close manager", "error", err)
		}
	}()

	tasks, err := reconcile.Build(cfg, b, st, afero.NewOsFs(), logger)
	if err != nil {
		logger.Error("failed to build tasks", "error", err)
		_ = manager.Close()
		os.Exit(1)
	}
	for _, task := range tasks {
		manager.RegisterTask(task)
	}

	if err := manager.Check(ctx); err != nil {
		logger.Warn("broker check failed", "error", err)
	}

	// startup cycle
	if err := runCycle(ctx, manager, logger, cfg.General.TestRun); err != nil && cfg.General.FailOnStartupError {
		logger.Error("startup cycle failed", "error", err)
		_ = manager.Close()
		os.Exit(1)
	}
	if *once {
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.General.Schedule != "" {
		runScheduled(ctx, cancel, cfg.General.Schedule, manager, logger, cfg.General.TestRun, sigChan)
		return
	}

	ticker := time.NewTicker(cfg.General.Timer)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = runCycle(ctx, manager, logger, cfg.General.TestRun)
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runScheduled drives cycles from a cron expression until a signal arrives.
// A cycle still running when the next tick fires is not started twice.
func runScheduled(ctx context.Context, cancel context.CancelFunc, schedule string, manager *maintenance.Manager, logger *slog.Logger, testRun bool, sigChan <-chan os.Signal) {
	cl := cronLogger{logger: logger.With("component", "scheduler")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(schedule, func() {
		_ = runCycle(ctx, manager, logger, testRun)
	}); err != nil {
		logger.Error("invalid schedule", "schedule", schedule, "error", err)
		return
	}

	c.Start()
	logger.Info("scheduler started", "schedule", schedule)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	<-c.Stop().Done()
}

func runCycle(ctx context.Context, manager *maintenance.Manager, logger *slog.Logger, testRun bool) error {
	if testRun {
		logger.Info("running in TEST MODE - no changes will be made")
	}
	if err := manager.RunAll(ctx); err != nil {
		// keep the daemon running
		logger.Error("cycle had errors", "error", err)
		return err
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cronLogger routes scheduler messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
