// Package postgres implements broker.Broker on a PostgreSQL jobs table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

// DefaultTable is the jobs table used when none is configured.
const DefaultTable = "jobs"

// Option configures the Broker.
type Option func(*Broker)

// WithTable sets the jobs table name.
func WithTable(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.table = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// Broker reads and mutates jobs through database/sql with the lib/pq driver.
type Broker struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Broker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres broker: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres broker: ping: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Broker {
	b := &Broker{db: db, table: DefaultTable, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With("component", "postgres_broker")
	return b
}

func (b *Broker) tableName() string {
	return pq.QuoteIdentifier(b.table)
}

// Migrate creates the jobs table and its (type, state) index if missing.
func (b *Broker) Migrate(ctx context.Context) error {
	tbl := b.tableName()
	idx := pq.QuoteIdentifier(b.table + "_type_state_idx")
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + tbl + ` (
			id         BIGSERIAL PRIMARY KEY,
			type       TEXT NOT NULL,
			state      TEXT NOT NULL,
			priority   INTEGER NOT NULL DEFAULT 0,
			data       JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + idx + ` ON ` + tbl + ` (type, state, priority, id)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres broker: migrate: %w", err)
		}
	}
	return nil
}

// Enqueue inserts a job and returns it with the assigned id.
func (b *Broker) Enqueue(ctx context.Context, job broker.Job) (broker.Job, error) {
	if job.State == "" {
		job.State = broker.StateInactive
	}
	data := []byte(job.Payload)
	if len(data) == 0 {
		data = []byte("{}")
	}

	query := `INSERT INTO ` + b.tableName() + ` (type, state, priority, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	var id int64
	err := b.db.QueryRowContext(ctx, query, job.Type, string(job.State), job.Priority, data).
		Scan(&id, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return broker.Job{}, fmt.Errorf("postgres broker: enqueue: %w", err)
	}
	job.ID = strconv.FormatInt(id, 10)
	return job, nil
}

// RangeByType selects the (type, state) rows ordered by priority then id.
func (b *Broker) RangeByType(ctx context.Context, jobType string, state broker.State, from, to int, order broker.Order) ([]broker.Job, error) {
	if err := broker.ValidateRange(jobType, state, from, to, order); err != nil {
		return nil, err
	}

	dir := "ASC"
	if order == broker.OrderDesc {
		dir = "DESC"
	}

	query := `SELECT id, type, state, priority, data, created_at, updated_at
		FROM ` + b.tableName() + `
		WHERE type = $1 AND state = $2
		ORDER BY priority ` + dir + `, id ` + dir + `
		OFFSET $3`
	args := []interface{}{jobType, string(state), from}
	if to != broker.ToEnd {
		query += ` LIMIT $4`
		args = append(args, to-from+1)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres broker: range %s/%s: %w", jobType, state, err)
	}
	defer rows.Close()

	var jobs []broker.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres broker: scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres broker: range %s/%s: %w", jobType, state, err)
	}
	return jobs, nil
}

// Remove deletes the job row.
func (b *Broker) Remove(ctx context.Context, job broker.Job) error {
	id, err := parseID(job.ID)
	if err != nil {
		return err
	}

	result, err := b.db.ExecContext(ctx, `DELETE FROM `+b.tableName()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres broker: remove %d: %w", id, err)
	}
	return expectOneRow(result, id)
}

// SetState updates the job's state.
func (b *Broker) SetState(ctx context.Context, job broker.Job, state broker.State) error {
	if !state.Valid() {
		return fmt.Errorf("postgres broker: set state: %w: %q", broker.ErrUnsupportedState, state)
	}
	id, err := parseID(job.ID)
	if err != nil {
		return err
	}

	result, err := b.db.ExecContext(ctx,
		`UPDATE `+b.tableName()+` SET state = $1, updated_at = now() WHERE id = $2`,
		string(state), id)
	if err != nil {
		return fmt.Errorf("postgres broker: set state %d: %w", id, err)
	}
	return expectOneRow(result, id)
}

// Ping checks database connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the connection pool.
func (b *Broker) Close() error {
	return b.db.Close()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres broker: job id %q: %w", s, broker.ErrJobNotFound)
	}
	return id, nil
}

func expectOneRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("postgres broker: job %d: %w", id, broker.ErrJobNotFound)
	}
	return nil
}

func scanJob(rows *sql.Rows) (broker.Job, error) {
	var (
		j       broker.Job
		id      int64
		state   string
		data    []byte
		created time.Time
		updated time.Time
	)
	if err := rows.Scan(&id, &j.Type, &state, &j.Priority, &data, &created, &updated); err != nil {
		return j, err
	}
	j.ID = strconv.FormatInt(id, 10)
	j.State = broker.State(state)
	j.Payload = json.RawMessage(data)
	j.CreatedAt = created
	j.UpdatedAt = updated
	return j, nil
}
