package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedFuture(t *testing.T) {
	f := Resolved(Result{Found: 3}, nil)

	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future must be done")
	}

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Found)
}

func TestWaitHonorsContext(t *testing.T) {
	f := newFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the future can still resolve afterwards
	f.resolve(Result{Succeeded: 1}, nil)
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
}

func TestAll(t *testing.T) {
	down := errors.New("down")
	results, err := All(context.Background(),
		Resolved(Result{Operation: "a", Succeeded: 2}, nil),
		Resolved(Result{Operation: "b"}, down),
		Resolved(Result{Operation: "c", Succeeded: 1}, nil),
	)

	assert.ErrorIs(t, err, down)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Operation)
	assert.Equal(t, "c", results[2].Operation)
	assert.Equal(t, 1, results[2].Succeeded)
}

func TestAllEmpty(t *testing.T) {
	results, err := All(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestResultErr(t *testing.T) {
	ok := Result{Outcomes: []Outcome{{JobID: "1"}, {JobID: "2"}}}
	assert.NoError(t, ok.Err())
	assert.Empty(t, ok.FailedIDs())

	boom := errors.New("boom")
	bad := Result{Outcomes: []Outcome{{JobID: "1"}, {JobID: "2", Err: boom}}}
	assert.ErrorIs(t, bad.Err(), boom)
	assert.Contains(t, bad.Err().Error(), "job 2")
	assert.Equal(t, []string{"2"}, bad.FailedIDs())
}
