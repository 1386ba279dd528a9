package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/go-jobjanitor/internal/broker/memory"
	"github.com/jmylchreest/go-jobjanitor/internal/strikes"
)

type fakeTask struct {
	name    string
	enabled bool
	err     error
	stats   TaskStats
	runs    int
}

func (f *fakeTask) Name() string     { return f.name }
func (f *fakeTask) Enabled() bool    { return f.enabled }
func (f *fakeTask) Stats() TaskStats { return f.stats }

func (f *fakeTask) Run(ctx context.Context) error {
	f.runs++
	return f.err
}

func TestRunAll(t *testing.T) {
	m := NewManager(memory.New(), nil, nil)

	ok := &fakeTask{name: "purge_completed:encode", enabled: true, stats: TaskStats{Found: 3, Succeeded: 3}}
	disabled := &fakeTask{name: "purge_failed:encode", enabled: false}
	m.RegisterTask(ok)
	m.RegisterTask(disabled)

	require.NoError(t, m.RunAll(context.Background()))

	assert.Equal(t, 1, ok.runs)
	assert.Zero(t, disabled.runs)

	stats := m.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.TasksRun)
	assert.Zero(t, stats.TasksFailed)
	assert.Equal(t, 3, stats.Tasks["purge_completed:encode"].Succeeded)
	assert.Len(t, m.Tasks(), 2)
}

func TestRunAllContinuesAfterFailure(t *testing.T) {
	m := NewManager(memory.New(), nil, nil)

	down := errors.New("broker unreachable")
	failing := &fakeTask{name: "deactivate_stuck:encode", enabled: true, err: down}
	after := &fakeTask{name: "purge_completed:encode", enabled: true}
	m.RegisterTask(failing)
	m.RegisterTask(after)

	err := m.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "deactivate_stuck:encode")

	assert.Equal(t, 1, after.runs, "later tasks still run")
	stats := m.LastStats()
	assert.Equal(t, 2, stats.TasksRun)
	assert.Equal(t, 1, stats.TasksFailed)
	assert.Len(t, stats.Errors, 1)
}

func TestRunAllStopsOnCancelledContext(t *testing.T) {
	m := NewManager(memory.New(), nil, nil)
	task := &fakeTask{name: "purge_completed:encode", enabled: true}
	m.RegisterTask(task)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, task.runs)
}

func TestRunAllPersistsStrikes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strikes.json")
	st := strikes.NewHandler(path, nil)
	st.Add("encode:active:1", "deactivate_stuck", "encode")

	m := NewManager(memory.New(), st, nil)
	require.NoError(t, m.RunAll(context.Background()))

	assert.Equal(t, 1, m.LastStats().StrikesAdded)
	assert.Equal(t, 1, m.LastStats().TotalStrikes)

	reloaded := strikes.NewHandler(path, nil)
	assert.Equal(t, 1, reloaded.Get("encode:active:1"))
}

func TestCheckAndClose(t *testing.T) {
	b := memory.New()
	m := NewManager(b, nil, nil)

	assert.NoError(t, m.Check(context.Background()))
	assert.Same(t, b, m.Broker())
	assert.NotNil(t, m.Strikes())
	assert.NoError(t, m.Close())
}
