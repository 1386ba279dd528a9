package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
	"github.com/jmylchreest/go-jobjanitor/internal/strikes"
)

// DefaultStrikeMaxAge is how long a strike survives without the job being
// seen again.
const DefaultStrikeMaxAge = 7 * 24 * time.Hour

// CycleStats tracks statistics for a single execution cycle
type CycleStats struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TasksRun     int
	TasksFailed  int
	Tasks        map[string]TaskStats // task name -> stats
	StrikesAdded int
	StrikesReset int
	TotalStrikes int
	Errors       []string
}

// Manager runs registered tasks against one broker
type Manager struct {
	logger       *slog.Logger
	broker       broker.Broker
	strikes      *strikes.Handler
	strikeMaxAge time.Duration
	tasks        []Task
	mu           sync.RWMutex
	lastStats    *CycleStats
}

// NewManager creates a manager. A nil strikes handler gets an in-memory one.
func NewManager(b broker.Broker, st *strikes.Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = strikes.NewHandler("", logger)
	}

	return &Manager{
		logger:       logger.With("component", "maintenance"),
		broker:       b,
		strikes:      st,
		strikeMaxAge: DefaultStrikeMaxAge,
		tasks:        make([]Task, 0),
	}
}

// RegisterTask adds a task to the execution list
func (m *Manager) RegisterTask(task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = append(m.tasks, task)
	m.logger.Info("registered task", "task", task.Name(), "enabled", task.Enabled())
}

// Tasks returns the registered tasks in execution order
func (m *Manager) Tasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Check pings the broker
func (m *Manager) Check(ctx context.Context) error {
	if err := m.broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	return nil
}

// RunAll executes all enabled tasks. A failing task is logged and the cycle
// continues with the next one.
func (m *Manager) RunAll(ctx context.Context) error {
	tasks := m.Tasks()

	stats := &CycleStats{
		StartTime: time.Now(),
		Tasks:     make(map[string]TaskStats),
		Errors:    make([]string, 0),
	}

	var errs []error

	for _, task := range tasks {
		if !task.Enabled() {
			m.logger.Debug("skipping disabled task", "task", task.Name())
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		m.logger.Debug("running task", "task", task.Name())
		stats.TasksRun++

		if err := task.Run(ctx); err != nil {
			m.logger.Error("task failed, continuing", "task", task.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", task.Name(), err))
			stats.TasksFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", task.Name(), err))
		}

		if st, ok := task.(StatsTask); ok {
			stats.Tasks[task.Name()] = st.Stats()
		}
	}

	stats.StrikesAdded, stats.StrikesReset = m.strikes.ResetCycleCounters()
	m.strikes.Cleanup(m.strikeMaxAge)
	stats.TotalStrikes = m.strikes.Count()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if err := m.strikes.Save(); err != nil {
		m.logger.Error("failed to save strikes", "error", err)
	}

	m.mu.Lock()
	m.lastStats = stats
	m.mu.Unlock()

	m.logCycleSummary(stats)

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d tasks failed: %w", stats.TasksFailed, stats.TasksRun, errors.Join(errs...))
	}
	return nil
}

// TaskResult is the per-task entry of the cycle summary
type TaskResult struct {
	Found     int `json:"found"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
}

func (m *Manager) logCycleSummary(stats *CycleStats) {
	var totals TaskStats
	results := make(map[string]TaskResult)
	for name, ts := range stats.Tasks {
		totals.Found += ts.Found
		totals.Succeeded += ts.Succeeded
		totals.Failed += ts.Failed
		totals.Skipped += ts.Skipped
		if ts.Found > 0 {
			results[name] = TaskResult(ts)
		}
	}

	m.logger.Info("cycle complete",
		slog.Group("cycle",
			slog.Duration("duration", stats.Duration.Round(time.Millisecond)),
			slog.Int("tasks_run", stats.TasksRun),
			slog.Int("tasks_failed", stats.TasksFailed),
		),
		slog.Group("totals",
			slog.Int("found", totals.Found),
			slog.Int("succeeded", totals.Succeeded),
			slog.Int("failed", totals.Failed),
			slog.Int("skipped", totals.Skipped),
		),
		slog.Group("strikes",
			slog.Int("added", stats.StrikesAdded),
			slog.Int("cleared", stats.StrikesReset),
			slog.Int("tracked", stats.TotalStrikes),
		),
		slog.Any("tasks", results),
	)

	if len(stats.Errors) > 0 {
		m.logger.Warn("cycle errors",
			slog.Int("count", len(stats.Errors)),
			slog.Any("errors", stats.Errors),
		)
	}
}

// LastStats returns the statistics from the last execution cycle
func (m *Manager) LastStats() *CycleStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastStats
}

// Strikes returns the strikes handler
func (m *Manager) Strikes() *strikes.Handler {
	return m.strikes
}

// Broker returns the broker tasks run against
func (m *Manager) Broker() broker.Broker {
	return m.broker
}

// Close saves strikes and closes the broker
func (m *Manager) Close() error {
	if err := m.strikes.Save(); err != nil {
		m.logger.Error("failed to save strikes on close", "error", err)
	}

	if err := m.broker.Close(); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}

	m.logger.Info("maintenance manager closed")
	return nil
}
