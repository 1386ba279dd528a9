package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue_test.db")

	b, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open broker: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func seed(t *testing.T, b *Broker, jobType string, state broker.State, n int) []broker.Job {
	t.Helper()
	out := make([]broker.Job, 0, n)
	for i := 0; i < n; i++ {
		j, err := b.Enqueue(context.Background(), broker.Job{Type: jobType, State: state, Payload: []byte(`{"n":1}`)})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		out = append(out, j)
	}
	return out
}

func TestRangeByTypeEmpty(t *testing.T) {
	b := newTestBroker(t)
	jobs, err := b.RangeByType(context.Background(), "encode", broker.StateComplete, 0, broker.ToEnd, broker.OrderAsc)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestRangeByTypeOrderAndWindow(t *testing.T) {
	b := newTestBroker(t)
	seeded := seed(t, b, "encode", broker.StateComplete, 4)
	seed(t, b, "encode", broker.StateFailed, 2)
	seed(t, b, "upload", broker.StateComplete, 1)

	ctx := context.Background()
	all, err := b.RangeByType(ctx, "encode", broker.StateComplete, 0, broker.ToEnd, broker.OrderAsc)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(all))
	}
	for i, j := range all {
		if j.ID != seeded[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, seeded[i].ID, j.ID)
		}
		if string(j.Payload) != `{"n":1}` {
			t.Errorf("unexpected payload %q", j.Payload)
		}
	}

	desc, err := b.RangeByType(ctx, "encode", broker.StateComplete, 1, 2, broker.OrderDesc)
	if err != nil {
		t.Fatalf("range desc: %v", err)
	}
	if len(desc) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(desc))
	}
	if desc[0].ID != seeded[2].ID || desc[1].ID != seeded[1].ID {
		t.Fatalf("unexpected desc window: %s, %s", desc[0].ID, desc[1].ID)
	}
}

func TestRemoveEmptiesState(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	jobs := seed(t, b, "encode", broker.StateFailed, 3)

	for _, j := range jobs {
		if err := b.Remove(ctx, j); err != nil {
			t.Fatalf("remove %s: %v", j.ID, err)
		}
	}

	left, err := b.RangeByType(ctx, "encode", broker.StateFailed, 0, broker.ToEnd, broker.OrderAsc)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected empty set after removal, got %d", len(left))
	}

	if err := b.Remove(ctx, jobs[0]); err == nil {
		t.Fatal("expected not found on second removal")
	}
}

func TestSetState(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	jobs := seed(t, b, "encode", broker.StateActive, 2)

	if err := b.SetState(ctx, jobs[0], broker.StateInactive); err != nil {
		t.Fatalf("set state: %v", err)
	}

	active, _ := b.RangeByType(ctx, "encode", broker.StateActive, 0, broker.ToEnd, broker.OrderAsc)
	inactive, _ := b.RangeByType(ctx, "encode", broker.StateInactive, 0, broker.ToEnd, broker.OrderAsc)
	if len(active) != 1 || len(inactive) != 1 {
		t.Fatalf("expected 1 active and 1 inactive, got %d and %d", len(active), len(inactive))
	}
	if inactive[0].ID != jobs[0].ID {
		t.Fatalf("expected %s inactive, got %s", jobs[0].ID, inactive[0].ID)
	}
}
