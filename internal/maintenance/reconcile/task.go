// Package reconcile binds the bulk operations to configured job types as
// maintenance tasks.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/go-jobjanitor/internal/bulk"
	"github.com/jmylchreest/go-jobjanitor/internal/maintenance"
)

var _ maintenance.StatsTask = (*Task)(nil)

// Task runs one bulk operation per cycle
type Task struct {
	name    string
	enabled bool
	op      *bulk.Operation
	logger  *slog.Logger

	mu   sync.Mutex
	last bulk.Result
}

// NewTask wraps op. The task name is "<operation>:<job type>".
func NewTask(op *bulk.Operation, enabled bool, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	name := op.Name() + ":" + op.Type()
	return &Task{
		name:    name,
		enabled: enabled,
		op:      op,
		logger:  logger.With("task", name),
	}
}

// Name returns the task identifier
func (t *Task) Name() string { return t.name }

// Enabled returns whether the task is enabled
func (t *Task) Enabled() bool { return t.enabled }

// Run executes the operation and waits for its result
func (t *Task) Run(ctx context.Context) error {
	res, err := t.op.Run(ctx)

	t.mu.Lock()
	t.last = res
	t.mu.Unlock()

	if err != nil {
		return err
	}

	if res.DryRun {
		t.logger.Info("[TEST RUN] jobs left in place", "count", res.Found-res.Skipped)
		return nil
	}

	t.logger.Info("purged jobs",
		"count", res.Succeeded,
		"state", string(res.State),
		"action", string(res.Action),
	)
	if res.Failed > 0 {
		t.logger.Warn("some jobs could not be handled",
			"failed", res.Failed,
			"job_ids", res.FailedIDs(),
			"error", res.Err(),
		)
	}
	return nil
}

// Stats returns the statistics from the last run
func (t *Task) Stats() maintenance.TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return maintenance.TaskStats{
		Found:     t.last.Found,
		Succeeded: t.last.Succeeded,
		Failed:    t.last.Failed,
		Skipped:   t.last.Skipped,
	}
}

// LastResult returns the full result of the last run
func (t *Task) LastResult() bulk.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
