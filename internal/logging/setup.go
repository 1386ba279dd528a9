package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/slog-logfilter"
)

// Setup configures the default logger with the given level and format.
// Formats: "json" (default) and "text" (logfmt style).
func Setup(logLevel string, format string) *slog.Logger {
	level := parseLevel(logLevel)

	opts := []logfilter.Option{
		logfilter.WithLevel(level),
		logfilter.WithOutput(os.Stdout),
	}

	if format == "text" {
		opts = append(opts, logfilter.WithFormat("text"))
	} else {
		opts = append(opts, logfilter.WithFormat("json"))
	}

	logger := logfilter.New(opts...)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the default logger at runtime.
func SetLevel(level slog.Level) {
	logfilter.SetLevel(level)
}

// AddTaskFilter lets debug records of one maintenance task through
// regardless of the global level.
func AddTaskFilter(taskName string) {
	logfilter.AddFilter(logfilter.LogFilter{
		Type:    "task",
		Pattern: taskName,
		Level:   "debug",
		Enabled: true,
	})
}

// AddJobTypeFilter does the same for every operation on one job type.
func AddJobTypeFilter(jobType string) {
	logfilter.AddFilter(logfilter.LogFilter{
		Type:    "type",
		Pattern: jobType,
		Level:   "debug",
		Enabled: true,
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
