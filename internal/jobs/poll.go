package jobs

import (
	"context"
	"iter"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

// Poll returns a lazy sequence of status snapshots for job id. The first
// fetch happens when iteration starts, then one per interval. Failed fetches
// are logged, counted and retried on the next tick. The first terminal
// snapshot is yielded last; no fetch follows it. The sequence also ends when
// ctx is cancelled, when the consumer stops, or when the provider no longer
// knows the job. The ticker is released in every case.
func (o *Orchestrator) Poll(ctx context.Context, id string, interval time.Duration) iter.Seq[core.JobSnapshot] {
	if interval <= 0 {
		interval = o.pollInterval
	}
	return func(yield func(core.JobSnapshot) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger := o.logger.With("job_id", id)
		for {
			o.metrics.IncPoll()
			snap, err := o.provider.GetJob(ctx, id)
			switch {
			case err == nil:
				o.observe(ctx, snap)
				if !yield(snap) || snap.Status.Terminal() {
					return
				}
			case ctx.Err() != nil:
				return
			case provider.IsKind(err, provider.KindNotFound):
				o.metrics.IncPollError(provider.Label(err))
				logger.Warn("job no longer known to provider, polling stopped", "error", err)
				return
			default:
				o.metrics.IncPollError(provider.Label(err))
				logger.Warn("job poll failed, retrying", "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// Watch starts a background poll loop for id that runs until the job is
// terminal, Forget(id) or Close is called. It returns false if id is already
// watched.
func (o *Orchestrator) Watch(id string, interval time.Duration) bool {
	ctx, cancel := context.WithCancel(o.base)
	gen, ok := o.registry.StartWatch(id, cancel)
	if !ok {
		cancel()
		return false
	}
	o.metrics.SetWatched(o.registry.Watching())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.registry.EndWatch(id, gen)
			o.metrics.SetWatched(o.registry.Watching())
		}()

		for range o.Poll(ctx, id, interval) {
		}
	}()
	return true
}
