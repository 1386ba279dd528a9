package redis

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

// Key layout matches the Kue job queue so the janitor can operate directly on
// a Kue deployment's Redis database. All keys share a configurable prefix
// ("q" by default).

// jobKey returns the Hash key of a job: {prefix}:job:{id}
func (b *Broker) jobKey(id string) string { return b.prefix + ":job:" + id }

// logKey returns the List key holding a job's log lines: {prefix}:job:{id}:log
func (b *Broker) logKey(id string) string { return b.prefix + ":job:" + id + ":log" }

// allKey is the Sorted Set of every job: {prefix}:jobs
func (b *Broker) allKey() string { return b.prefix + ":jobs" }

// stateKey returns the Sorted Set of jobs in a state: {prefix}:jobs:{state}
func (b *Broker) stateKey(state broker.State) string { return b.prefix + ":jobs:" + string(state) }

// typeStateKey returns the (type, state) index: {prefix}:jobs:{type}:{state}
func (b *Broker) typeStateKey(jobType string, state broker.State) string {
	return b.prefix + ":jobs:" + jobType + ":" + string(state)
}

// pendingKey returns the List workers block on for new inactive jobs:
// {prefix}:{type}:jobs
func (b *Broker) pendingKey(jobType string) string { return b.prefix + ":" + jobType + ":jobs" }

// idsKey is the counter used to allocate job ids: {prefix}:ids
func (b *Broker) idsKey() string { return b.prefix + ":ids" }

// zid builds a Sorted Set member that sorts ids numerically when scores tie:
// the id's length, zero padded to two digits, then "|" and the id.
func zid(id string) string {
	return fmt.Sprintf("%02d|%s", len(id), id)
}

// parseZid extracts the job id from a Sorted Set member.
func parseZid(member string) string {
	if i := strings.IndexByte(member, '|'); i >= 0 {
		return member[i+1:]
	}
	return member
}
