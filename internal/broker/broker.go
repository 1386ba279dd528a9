// Package broker defines the contract between the janitor and the job-queue
// broker that owns jobs and their lifecycle states. Concrete back-ends live in
// the sub-packages (memory, redis, postgres, sqlite, kueapi).
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrJobNotFound is returned when an action targets a job the broker no
	// longer holds.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidQuery is returned for malformed range queries.
	ErrInvalidQuery = errors.New("invalid range query")

	// ErrUnsupportedState is returned for state values outside the lifecycle.
	ErrUnsupportedState = errors.New("unsupported job state")
)

// State is a broker lifecycle state.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateDelayed  State = "delayed"
)

// AllStates lists every lifecycle state the broker assigns.
var AllStates = []State{
	StateInactive,
	StateActive,
	StateComplete,
	StateFailed,
	StateDelayed,
}

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// ParseState converts a config or CLI string into a State.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedState, s)
	}
	return st, nil
}

// Order is the traversal direction of a range query.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ToEnd is the conventional upper bound meaning "until the last job".
const ToEnd = -1

// Job is a transient reference to a broker-owned job.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	State     State           `json:"state"`
	Priority  int             `json:"priority"`
	Payload   json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Broker is the subset of a job-queue broker the janitor needs.
type Broker interface {
	// RangeByType returns the jobs of jobType currently in state. The
	// (jobType, state) index is traversed in order and the inclusive window
	// [from, to] is applied to that traversal; to == ToEnd means "to the
	// end". An empty result is not an error.
	RangeByType(ctx context.Context, jobType string, state State, from, to int, order Order) ([]Job, error)

	// Remove deletes the job from the broker.
	Remove(ctx context.Context, job Job) error

	// SetState moves the job into state, updating every index it belongs to.
	SetState(ctx context.Context, job Job, state State) error

	// Ping checks broker connectivity.
	Ping(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}

// ValidateRange checks the arguments of a RangeByType call.
func ValidateRange(jobType string, state State, from, to int, order Order) error {
	if jobType == "" {
		return fmt.Errorf("%w: job type is required", ErrInvalidQuery)
	}
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedState, state)
	}
	if order != OrderAsc && order != OrderDesc {
		return fmt.Errorf("%w: order must be asc or desc, got %q", ErrInvalidQuery, order)
	}
	if from < 0 {
		return fmt.Errorf("%w: from must not be negative", ErrInvalidQuery)
	}
	if to != ToEnd && to < from {
		return fmt.Errorf("%w: to (%d) is before from (%d)", ErrInvalidQuery, to, from)
	}
	return nil
}

// Window applies the inclusive [from, to] window to an already ordered slice.
func Window[T any](items []T, from, to int) []T {
	if from >= len(items) {
		return nil
	}
	end := len(items)
	if to != ToEnd && to+1 < end {
		end = to + 1
	}
	return items[from:end]
}
