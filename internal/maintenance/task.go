// Package maintenance runs reconciliation cycles: every registered task is
// executed in turn against the broker and the cycle is summarised in a
// single structured log record.
package maintenance

import "context"

// Task is one unit of work executed by the Manager
type Task interface {
	// Name returns the unique identifier for this task
	Name() string

	// Enabled returns whether this task should be executed
	Enabled() bool

	// Run executes the task with the given context
	Run(ctx context.Context) error
}

// TaskStats holds statistics from a task run
type TaskStats struct {
	Found     int // jobs matching the task's query
	Succeeded int // jobs the action was applied to
	Failed    int // jobs whose action failed
	Skipped   int // jobs held back by strikes
}

// StatsTask is an optional interface for tasks that track statistics
type StatsTask interface {
	Task
	// Stats returns the statistics from the last run
	Stats() TaskStats
}
