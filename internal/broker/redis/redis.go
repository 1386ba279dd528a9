// Package redis implements broker.Broker directly on a Redis database laid
// out the way the Kue job queue stores jobs: one Hash per job plus Sorted Set
// indexes per state and per (type, state).
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	b := redis.New(client, redis.WithPrefix("q"))
//	if err := b.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

// DefaultPrefix is Kue's default key prefix.
const DefaultPrefix = "q"

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *Broker) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// Broker talks to Redis through go-redis. It owns the client and closes it
// on Close.
type Broker struct {
	client goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

// New creates a Redis-backed broker.
func New(client goredis.UniversalClient, opts ...Option) *Broker {
	b := &Broker{client: client, prefix: DefaultPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With("component", "redis_broker")
	return b
}

// Enqueue stores a new job and indexes it under its type and state. The id
// is allocated from the shared counter when job.ID is empty.
func (b *Broker) Enqueue(ctx context.Context, job broker.Job) (broker.Job, error) {
	if job.Type == "" {
		return broker.Job{}, fmt.Errorf("redis broker: enqueue: %w: job type is required", broker.ErrInvalidQuery)
	}
	if job.State == "" {
		job.State = broker.StateInactive
	}
	if !job.State.Valid() {
		return broker.Job{}, fmt.Errorf("redis broker: enqueue: %w", broker.ErrUnsupportedState)
	}
	if job.ID == "" {
		n, err := b.client.Incr(ctx, b.idsKey()).Result()
		if err != nil {
			return broker.Job{}, fmt.Errorf("redis broker: allocate id: %w", err)
		}
		job.ID = strconv.FormatInt(n, 10)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	member := zid(job.ID)
	score := float64(job.Priority)

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.ID), jobToMap(job))
	pipe.ZAdd(ctx, b.allKey(), goredis.Z{Score: score, Member: member})
	pipe.ZAdd(ctx, b.stateKey(job.State), goredis.Z{Score: score, Member: member})
	pipe.ZAdd(ctx, b.typeStateKey(job.Type, job.State), goredis.Z{Score: score, Member: member})
	if job.State == broker.StateInactive {
		pipe.LPush(ctx, b.pendingKey(job.Type), 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return broker.Job{}, fmt.Errorf("redis broker: enqueue %s: %w", job.ID, err)
	}
	return job, nil
}

// RangeByType reads the (type, state) Sorted Set by index and loads each
// job Hash.
func (b *Broker) RangeByType(ctx context.Context, jobType string, state broker.State, from, to int, order broker.Order) ([]broker.Job, error) {
	if err := broker.ValidateRange(jobType, state, from, to, order); err != nil {
		return nil, err
	}

	key := b.typeStateKey(jobType, state)
	var (
		members []string
		err     error
	)
	if order == broker.OrderDesc {
		members, err = b.client.ZRevRange(ctx, key, int64(from), int64(to)).Result()
	} else {
		members, err = b.client.ZRange(ctx, key, int64(from), int64(to)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis broker: range %s: %w", key, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := b.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, b.jobKey(parseZid(m)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis broker: load jobs: %w", err)
	}

	jobs := make([]broker.Job, 0, len(members))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			// index entry outlived its Hash; a concurrent removal is in flight
			b.logger.DebugContext(ctx, "skipping dangling index entry", "key", key, "member", members[i])
			continue
		}
		jobs = append(jobs, mapToJob(parseZid(members[i]), vals))
	}
	return jobs, nil
}

// Remove deletes the job Hash, its log and every index entry.
func (b *Broker) Remove(ctx context.Context, job broker.Job) error {
	current, err := b.currentState(ctx, job.ID)
	if err != nil {
		return err
	}

	member := zid(job.ID)
	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, b.allKey(), member)
	pipe.ZRem(ctx, b.stateKey(current), member)
	pipe.ZRem(ctx, b.typeStateKey(job.Type, current), member)
	pipe.Del(ctx, b.jobKey(job.ID), b.logKey(job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis broker: remove %s: %w", job.ID, err)
	}
	return nil
}

// SetState moves the job between state indexes. Moving to inactive also
// notifies workers blocked on the type's pending list.
func (b *Broker) SetState(ctx context.Context, job broker.Job, state broker.State) error {
	if !state.Valid() {
		return fmt.Errorf("redis broker: set state: %w: %q", broker.ErrUnsupportedState, state)
	}
	current, err := b.currentState(ctx, job.ID)
	if err != nil {
		return err
	}

	member := zid(job.ID)
	score := float64(job.Priority)
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)

	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, b.stateKey(current), member)
	pipe.ZRem(ctx, b.typeStateKey(job.Type, current), member)
	pipe.HSet(ctx, b.jobKey(job.ID), "state", string(state), "updated_at", now)
	pipe.ZAdd(ctx, b.stateKey(state), goredis.Z{Score: score, Member: member})
	pipe.ZAdd(ctx, b.typeStateKey(job.Type, state), goredis.Z{Score: score, Member: member})
	if state == broker.StateInactive {
		pipe.LPush(ctx, b.pendingKey(job.Type), 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis broker: set state %s -> %s: %w", job.ID, state, err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) currentState(ctx context.Context, id string) (broker.State, error) {
	s, err := b.client.HGet(ctx, b.jobKey(id), "state").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", fmt.Errorf("redis broker: job %s: %w", id, broker.ErrJobNotFound)
		}
		return "", fmt.Errorf("redis broker: get state %s: %w", id, err)
	}
	return broker.State(s), nil
}

func jobToMap(j broker.Job) map[string]interface{} {
	data := string(j.Payload)
	if data == "" {
		data = "{}"
	}
	return map[string]interface{}{
		"type":       j.Type,
		"state":      string(j.State),
		"priority":   strconv.Itoa(j.Priority),
		"data":       data,
		"created_at": strconv.FormatInt(j.CreatedAt.UnixMilli(), 10),
		"updated_at": strconv.FormatInt(j.UpdatedAt.UnixMilli(), 10),
	}
}

func mapToJob(id string, m map[string]string) broker.Job {
	// malformed numeric fields read as zero
	priority, _ := strconv.Atoi(m["priority"])
	createdMs, _ := strconv.ParseInt(m["created_at"], 10, 64)
	updatedMs, _ := strconv.ParseInt(m["updated_at"], 10, 64)

	j := broker.Job{
		ID:       id,
		Type:     m["type"],
		State:    broker.State(m["state"]),
		Priority: priority,
	}
	if d := m["data"]; d != "" {
		j.Payload = []byte(d)
	}
	if createdMs > 0 {
		j.CreatedAt = time.UnixMilli(createdMs).UTC()
	}
	if updatedMs > 0 {
		j.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	}
	return j
}
