// Package bulk implements query-then-act batch procedures over every job of
// one type in one lifecycle state. An Operation lists the jobs, applies a
// terminal action to each of them on a bounded fan-out and resolves a single
// Future carrying the aggregate Result.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
	"github.com/jmylchreest/go-jobjanitor/internal/fsutil"
)

// Action is the terminal action applied to each job of a batch.
type Action string

const (
	// ActionRemove deletes the job from the broker.
	ActionRemove Action = "remove"
	// ActionRequeue moves the job back to inactive so a worker picks it up
	// again.
	ActionRequeue Action = "requeue"
)

// ParseAction converts a config string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionRemove, "":
		return ActionRemove, nil
	case ActionRequeue:
		return ActionRequeue, nil
	default:
		return "", fmt.Errorf("unknown action %q (want remove or requeue)", s)
	}
}

// DefaultConcurrency bounds the number of in-flight per-job actions.
const DefaultConcurrency = 8

// Gate decides, across runs, whether a job has been seen often enough to be
// acted on. strikes.Handler satisfies it.
type Gate interface {
	Add(key, operation, jobType string) int
	HasExceeded(key string, maxStrikes int) bool
	Reset(key string)
}

// Option configures an Operation.
type Option func(*Operation)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operation) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName overrides the operation name used in logs and strikes.
func WithName(name string) Option {
	return func(o *Operation) { o.name = name }
}

// WithConcurrency bounds the number of in-flight actions. Values below one
// fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *Operation) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithDryRun makes the operation query and report without acting.
func WithDryRun(dryRun bool) Option {
	return func(o *Operation) { o.dryRun = dryRun }
}

// WithStrikes only acts on jobs seen in this state on at least maxStrikes
// runs.
func WithStrikes(gate Gate, maxStrikes int) Option {
	return func(o *Operation) {
		o.gate = gate
		o.maxStrikes = maxStrikes
	}
}

// WithWorkDirs purges each job's working directory below root after a
// successful action.
func WithWorkDirs(fsys afero.Fs, root string) Option {
	return func(o *Operation) {
		o.fs = fsys
		o.workDirRoot = root
	}
}

// Operation is one (type, state, action) batch procedure.
type Operation struct {
	name        string
	jobType     string
	state       broker.State
	action      Action
	broker      broker.Broker
	logger      *slog.Logger
	concurrency int
	dryRun      bool
	gate        Gate
	maxStrikes  int
	fs          afero.Fs
	workDirRoot string
}

// New builds an operation acting on every jobType job in state.
func New(b broker.Broker, jobType string, state broker.State, action Action, opts ...Option) *Operation {
	o := &Operation{
		name:        fmt.Sprintf("%s_%s", action, state),
		jobType:     jobType,
		state:       state,
		action:      action,
		broker:      b,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil && o.workDirRoot != "" {
		o.fs = afero.NewOsFs()
	}
	o.logger = o.logger.With("operation", o.name, "type", jobType, "state", string(state))
	return o
}

// DeactivateStuck recovers jobs left active by a crashed worker, either
// discarding them (ActionRemove) or handing them back to the queue
// (ActionRequeue).
func DeactivateStuck(b broker.Broker, jobType string, action Action, opts ...Option) *Operation {
	return New(b, jobType, broker.StateActive, action, append([]Option{WithName("deactivate_stuck")}, opts...)...)
}

// PurgeCompleted removes every complete job of jobType.
func PurgeCompleted(b broker.Broker, jobType string, opts ...Option) *Operation {
	return New(b, jobType, broker.StateComplete, ActionRemove, append([]Option{WithName("purge_completed")}, opts...)...)
}

// PurgeFailed removes every failed job of jobType.
func PurgeFailed(b broker.Broker, jobType string, opts ...Option) *Operation {
	return New(b, jobType, broker.StateFailed, ActionRemove, append([]Option{WithName("purge_failed")}, opts...)...)
}

// Name returns the operation name.
func (o *Operation) Name() string { return o.name }

// Type returns the job type the operation targets.
func (o *Operation) Type() string { return o.jobType }

// Start runs the operation in the background and returns its Future.
func (o *Operation) Start(ctx context.Context) *Future {
	f := newFuture()
	go func() {
		f.resolve(o.execute(ctx))
	}()
	return f
}

// Run runs the operation and waits for it.
func (o *Operation) Run(ctx context.Context) (Result, error) {
	return o.Start(ctx).Wait(ctx)
}

func (o *Operation) execute(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{
		Operation: o.name,
		Type:      o.jobType,
		State:     o.state,
		Action:    o.action,
		DryRun:    o.dryRun,
	}

	jobs, err := Query(ctx, o.broker, o.jobType, o.state)
	if err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s: query %s/%s: %w", o.name, o.jobType, o.state, err)
	}
	result.Found = len(jobs)

	targets := o.admit(jobs)
	result.Skipped = len(jobs) - len(targets)

	o.logger.Info("found jobs",
		"count", len(jobs),
		"eligible", len(targets),
		"action", string(o.action),
		"test_run", o.dryRun,
	)

	if o.dryRun {
		for _, job := range targets {
			o.logger.Info("[TEST RUN] would apply action", "job_id", job.ID, "action", string(o.action))
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	// issued actions outlive the caller giving up on the wait
	actx := context.WithoutCancel(ctx)

	outcomes := make([]Outcome, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for i, job := range targets {
		g.Go(func() error {
			outcomes[i] = o.apply(actx, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, oc := range outcomes {
		if oc.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	result.Outcomes = outcomes
	result.Duration = time.Since(start)

	o.logger.Info("operation completed",
		"found", result.Found,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// admit filters jobs through the strike gate. Without a gate every job is
// eligible.
func (o *Operation) admit(jobs []broker.Job) []broker.Job {
	if o.gate == nil || o.maxStrikes <= 0 {
		return jobs
	}

	admitted := make([]broker.Job, 0, len(jobs))
	for _, job := range jobs {
		key := o.strikeKey(job)
		strikes := o.gate.Add(key, o.name, job.Type)
		if !o.gate.HasExceeded(key, o.maxStrikes) {
			o.logger.Debug("job below strike threshold",
				"job_id", job.ID,
				"strikes", strikes,
				"max_strikes", o.maxStrikes,
			)
			continue
		}
		admitted = append(admitted, job)
	}
	return admitted
}

func (o *Operation) strikeKey(job broker.Job) string {
	return o.jobType + ":" + string(o.state) + ":" + job.ID
}

func (o *Operation) apply(ctx context.Context, job broker.Job) Outcome {
	// a requeued job will run again and still needs its working directory
	purge := o.workDirRoot != "" && o.action == ActionRemove

	var dir string
	if purge {
		d, err := fsutil.WorkDir(o.workDirRoot, job.ID)
		if err != nil {
			o.logger.Error("refusing to act on job with unsafe id", "job_id", job.ID, "root", o.workDirRoot, "error", err)
			return Outcome{JobID: job.ID, Err: err}
		}
		dir = d
	}

	var err error
	switch o.action {
	case ActionRequeue:
		err = o.broker.SetState(ctx, job, broker.StateInactive)
	default:
		err = o.broker.Remove(ctx, job)
	}
	if err != nil {
		o.logger.Error("job action failed", "job_id", job.ID, "action", string(o.action), "error", err)
		return Outcome{JobID: job.ID, Err: err}
	}

	if o.gate != nil {
		o.gate.Reset(o.strikeKey(job))
	}

	if purge {
		if err := fsutil.Purge(o.fs, dir); err != nil {
			o.logger.Error("failed to purge work dir", "job_id", job.ID, "path", dir, "error", err)
			return Outcome{JobID: job.ID, Err: fmt.Errorf("purge work dir: %w", err)}
		}
	}

	o.logger.Debug("job action applied", "job_id", job.ID, "action", string(o.action))
	return Outcome{JobID: job.ID}
}
