package bulk

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

// Outcome is what happened to one job of the batch.
type Outcome struct {
	JobID string
	Err   error
}

// Result aggregates a whole batch.
type Result struct {
	Operation string
	Type      string
	State     broker.State
	Action    Action
	DryRun    bool

	Found     int // jobs returned by the range query
	Skipped   int // jobs held back by the strike gate
	Succeeded int
	Failed    int

	Outcomes []Outcome
	Duration time.Duration
}

// Err joins the per-job failures, or returns nil when every action succeeded.
func (r Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", o.JobID, o.Err))
		}
	}
	return errors.Join(errs...)
}

// FailedIDs lists the jobs whose action failed.
func (r Result) FailedIDs() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Err != nil {
			ids = append(ids, o.JobID)
		}
	}
	return ids
}
