package jobs

import (
	"context"
	"time"
)

// DefaultListRefresh is the job list refresh period.
const DefaultListRefresh = 30 * time.Second

// StartListRefresher refreshes the job list every interval until ctx is
// cancelled. It runs once immediately.
func (o *Orchestrator) StartListRefresher(ctx context.Context, interval time.Duration, limit int) {
	if interval <= 0 {
		interval = DefaultListRefresh
	}
	o.logger.Info("job list refresher started", "interval", interval, "limit", limit)

	o.refreshList(ctx, limit)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("job list refresher stopped")
			return
		case <-ticker.C:
			o.refreshList(ctx, limit)
		}
	}
}

func (o *Orchestrator) refreshList(ctx context.Context, limit int) {
	jobs, err := o.List(ctx, limit)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("job list refresh failed", "error", err)
		}
		return
	}
	o.logger.Debug("job list refreshed", "jobs", len(jobs), "known", o.registry.Len())
}
