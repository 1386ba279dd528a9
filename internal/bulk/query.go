package bulk

import (
	"context"

	"github.com/jmylchreest/go-jobjanitor/internal/broker"
)

// Query returns every job of jobType in state, oldest first.
func Query(ctx context.Context, b broker.Broker, jobType string, state broker.State) ([]broker.Job, error) {
	return b.RangeByType(ctx, jobType, state, 0, broker.ToEnd, broker.OrderAsc)
}

// ActiveJobs returns every active job of jobType, oldest first.
func ActiveJobs(ctx context.Context, b broker.Broker, jobType string) ([]broker.Job, error) {
	return Query(ctx, b, jobType, broker.StateActive)
}
