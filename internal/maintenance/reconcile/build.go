package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
	"github.com/jmylchreest/go-jobjanitor/internal/bulk"
	"github.com/jmylchreest/go-jobjanitor/internal/config"
)

// Build creates the deactivate-stuck, purge-completed and purge-failed tasks
// of every configured job type, in that order. Disabled tasks are returned
// too and skipped by the manager. A nil fsys means the OS filesystem.
func Build(cfg *config.Config, b broker.Broker, gate bulk.Gate, fsys afero.Fs, logger *slog.Logger) ([]*Task, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	tasks := make([]*Task, 0, 3*len(cfg.JobTypes))
	for _, jt := range cfg.JobTypes {
		common := func() []bulk.Option {
			opts := []bulk.Option{
				bulk.WithLogger(logger),
				bulk.WithConcurrency(cfg.General.Concurrency),
				bulk.WithDryRun(cfg.General.TestRun),
			}
			if jt.WorkDirRoot != "" {
				opts = append(opts, bulk.WithWorkDirs(fsys, jt.WorkDirRoot))
			}
			return opts
		}

		action, err := bulk.ParseAction(jt.StuckAction(cfg.JobDefaults))
		if err != nil {
			return nil, fmt.Errorf("job type %s: %w", jt.Name, err)
		}
		stuckOpts := common()
		if gate != nil {
			stuckOpts = append(stuckOpts, bulk.WithStrikes(gate, jt.MaxStrikes(cfg.JobDefaults)))
		}

		tasks = append(tasks,
			NewTask(bulk.DeactivateStuck(b, jt.Name, action, stuckOpts...), jt.DeactivateStuck.Enabled, logger),
			NewTask(bulk.PurgeCompleted(b, jt.Name, common()...), jt.PurgeCompleted.Enabled, logger),
			NewTask(bulk.PurgeFailed(b, jt.Name, common()...), jt.PurgeFailed.Enabled, logger),
		)
	}
	return tasks, nil
}
