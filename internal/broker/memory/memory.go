// Package memory is an in-process broker. It is safe for concurrent use and
// meant for development and tests; it can inject failures into range queries
// and per-job actions.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

type entry struct {
	job  broker.Job
	rank int64
}

// Broker keeps jobs in a map and ranks them by insertion order.
type Broker struct {
	mu       sync.RWMutex
	jobs     map[string]*entry
	seq      int64
	rangeErr error
	jobErrs  map[string]error
	removes  int
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{
		jobs:    make(map[string]*entry),
		jobErrs: make(map[string]error),
	}
}

// Add stores a job and returns it with ID and timestamps filled in. Jobs
// without an ID get the next numeric id.
func (b *Broker) Add(job broker.Job) broker.Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	if job.ID == "" {
		job.ID = strconv.FormatInt(b.seq, 10)
	}
	if job.State == "" {
		job.State = broker.StateInactive
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	b.jobs[job.ID] = &entry{job: job, rank: b.seq}
	return job
}

// FailRange makes every following RangeByType call return err. A nil err
// clears the failure.
func (b *Broker) FailRange(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rangeErr = err
}

// FailJob makes actions on the job with the given id return err.
func (b *Broker) FailJob(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobErrs[id] = err
}

// Count returns the number of jobs of jobType in state.
func (b *Broker) Count(jobType string, state broker.State) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.jobs {
		if e.job.Type == jobType && e.job.State == state {
			n++
		}
	}
	return n
}

// Removes returns how many Remove calls succeeded.
func (b *Broker) Removes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.removes
}

// RangeByType implements broker.Broker.
func (b *Broker) RangeByType(_ context.Context, jobType string, state broker.State, from, to int, order broker.Order) ([]broker.Job, error) {
	if err := broker.ValidateRange(jobType, state, from, to, order); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.rangeErr != nil {
		return nil, b.rangeErr
	}

	matches := make([]*entry, 0, len(b.jobs))
	for _, e := range b.jobs {
		if e.job.Type == jobType && e.job.State == state {
			matches = append(matches, e)
		}
	}

	// priority first, then insertion, like a score-ordered sorted set
	sort.Slice(matches, func(i, k int) bool {
		if order == broker.OrderDesc {
			i, k = k, i
		}
		a, c := matches[i], matches[k]
		if a.job.Priority != c.job.Priority {
			return a.job.Priority < c.job.Priority
		}
		return a.rank < c.rank
	})

	window := broker.Window(matches, from, to)
	result := make([]broker.Job, 0, len(window))
	for _, e := range window {
		result = append(result, e.job)
	}
	return result, nil
}

// Remove implements broker.Broker.
func (b *Broker) Remove(_ context.Context, job broker.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.jobErrs[job.ID]; err != nil {
		return err
	}
	if _, ok := b.jobs[job.ID]; !ok {
		return broker.ErrJobNotFound
	}
	delete(b.jobs, job.ID)
	b.removes++
	return nil
}

// SetState implements broker.Broker.
func (b *Broker) SetState(_ context.Context, job broker.Job, state broker.State) error {
	if !state.Valid() {
		return broker.ErrUnsupportedState
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.jobErrs[job.ID]; err != nil {
		return err
	}
	e, ok := b.jobs[job.ID]
	if !ok {
		return broker.ErrJobNotFound
	}
	e.job.State = state
	e.job.UpdatedAt = time.Now().UTC()
	return nil
}

// Ping always succeeds.
func (b *Broker) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (b *Broker) Close() error { return nil }
