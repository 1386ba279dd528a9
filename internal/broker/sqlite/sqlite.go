// Package sqlite implements broker.Broker on a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

var _ broker.Broker = (*Broker)(nil)

// Broker stores jobs in a SQLite table ranked by priority then insertion
// sequence.
type Broker struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, logger *slog.Logger) (*Broker, error) {
	if path == "" {
		path = "queue.db"
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite broker: open %s: %w", path, err)
	}
	b := &Broker{db: db, logger: logger.With("component", "sqlite_broker")}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS jobs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		data TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS jobs_type_state ON jobs(type, state, priority, seq);
	`
	if _, err := b.db.Exec(q); err != nil {
		return fmt.Errorf("sqlite broker: migrate: %w", err)
	}
	return nil
}

// Enqueue inserts a job, assigning a UUID when it has no id.
func (b *Broker) Enqueue(ctx context.Context, job broker.Job) (broker.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.State == "" {
		job.State = broker.StateInactive
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO jobs(id,type,state,priority,data,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		job.ID, job.Type, string(job.State), job.Priority, string(job.Payload), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return broker.Job{}, fmt.Errorf("sqlite broker: enqueue %s: %w", job.ID, err)
	}
	return job, nil
}

// RangeByType implements broker.Broker.
func (b *Broker) RangeByType(ctx context.Context, jobType string, state broker.State, from, to int, order broker.Order) ([]broker.Job, error) {
	if err := broker.ValidateRange(jobType, state, from, to, order); err != nil {
		return nil, err
	}

	dir := "ASC"
	if order == broker.OrderDesc {
		dir = "DESC"
	}
	limit := -1
	if to != broker.ToEnd {
		limit = to - from + 1
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT id,type,state,priority,data,created_at,updated_at FROM jobs
		WHERE type = ? AND state = ?
		ORDER BY priority `+dir+`, seq `+dir+`
		LIMIT ? OFFSET ?`,
		jobType, string(state), limit, from)
	if err != nil {
		return nil, fmt.Errorf("sqlite broker: range %s/%s: %w", jobType, state, err)
	}
	defer rows.Close()

	var out []broker.Job
	for rows.Next() {
		var (
			j                  broker.Job
			st                 string
			data               sql.NullString
			createdAt, updated sql.NullTime
		)
		if err := rows.Scan(&j.ID, &j.Type, &st, &j.Priority, &data, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("sqlite broker: scan: %w", err)
		}
		j.State = broker.State(st)
		if data.Valid && data.String != "" {
			j.Payload = []byte(data.String)
		}
		if createdAt.Valid {
			j.CreatedAt = createdAt.Time
		}
		if updated.Valid {
			j.UpdatedAt = updated.Time
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite broker: range %s/%s: %w", jobType, state, err)
	}
	return out, nil
}

// Remove implements broker.Broker.
func (b *Broker) Remove(ctx context.Context, job broker.Job) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID)
	if err != nil {
		return fmt.Errorf("sqlite broker: remove %s: %w", job.ID, err)
	}
	return expectAffected(res, job.ID)
}

// SetState implements broker.Broker.
func (b *Broker) SetState(ctx context.Context, job broker.Job, state broker.State) error {
	if !state.Valid() {
		return fmt.Errorf("sqlite broker: set state: %w: %q", broker.ErrUnsupportedState, state)
	}
	res, err := b.db.ExecContext(ctx, `UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), job.ID)
	if err != nil {
		return fmt.Errorf("sqlite broker: set state %s: %w", job.ID, err)
	}
	return expectAffected(res, job.ID)
}

// Ping checks the database handle.
func (b *Broker) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database.
func (b *Broker) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func expectAffected(res sql.Result, id string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("sqlite broker: job %s: %w", id, broker.ErrJobNotFound)
	}
	return nil
}
