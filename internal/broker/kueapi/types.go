package kueapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

// flexString accepts both JSON strings and numbers. Kue serialises ids and
// timestamps either way depending on version.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Job is a job as rendered by the Kue JSON API
type Job struct {
	ID        flexString      `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	State     string          `json:"state"`
	CreatedAt flexString      `json:"created_at"`
	UpdatedAt flexString      `json:"updated_at"`
	Error     string          `json:"error,omitempty"`
}

// Message is the body Kue returns for mutations
type Message struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Stats is the body of GET /stats
type Stats struct {
	InactiveCount int   `json:"inactiveCount"`
	CompleteCount int   `json:"completeCount"`
	ActiveCount   int   `json:"activeCount"`
	FailedCount   int   `json:"failedCount"`
	DelayedCount  int   `json:"delayedCount"`
	WorkTime      int64 `json:"workTime"`
}

// toBroker converts an API record. Records that omit the state or type take
// them from the query that returned them.
func (j Job) toBroker(jobType string, state broker.State) (broker.Job, error) {
	if j.State != "" {
		st, err := broker.ParseState(j.State)
		if err != nil {
			return broker.Job{}, fmt.Errorf("job %s: %w", j.ID, err)
		}
		state = st
	}
	if j.Type != "" {
		jobType = j.Type
	}
	return broker.Job{
		ID:        string(j.ID),
		Type:      jobType,
		State:     state,
		Priority:  j.Priority,
		Payload:   j.Data,
		CreatedAt: parseMillis(string(j.CreatedAt)),
		UpdatedAt: parseMillis(string(j.UpdatedAt)),
	}, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
