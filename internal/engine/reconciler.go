package engine

import (
	"context"
	"log/slog"
	"time"

	"favsync/internal/config"
)

// runReconciler periodically audits the store against ground truth: items
// already downloaded should not keep a live PENDING/EXECUTING task around.
func (e *Engine) runReconciler(ctx context.Context) {
	defer e.loops.Done()

	ticker := time.NewTicker(e.cfg.Sync.Reconcile.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Reconciler loop stopped")
			return
		case <-ticker.C:
			e.reconcileCycle(ctx)
		}
	}
}

// reconcileCycle sweeps every polled favorite list. Ad-hoc submissions land
// under the sentinel list, so an item completed there counts as resolved for
// every list it still appears in.
func (e *Engine) reconcileCycle(ctx context.Context) {
	sentinelDone, err := e.store.CompletedBvids(ctx, config.SentinelFavid)
	if err != nil {
		e.logger.Warn("Reconcile: failed to collect ad-hoc completions", slog.Any("error", err))
		sentinelDone = map[string]struct{}{}
	}

	for _, favid := range e.cfg.PolledFavids() {
		if err := e.reconcileList(ctx, favid, sentinelDone); err != nil {
			e.logger.Warn("Reconcile failed for favorite list",
				slog.String("favid", favid),
				slog.Any("error", err),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Engine) reconcileList(ctx context.Context, favid string, sentinelDone map[string]struct{}) error {
	completed, err := e.store.CompletedBvids(ctx, favid)
	if err != nil {
		return err
	}
	for bvid := range sentinelDone {
		completed[bvid] = struct{}{}
	}

	e.logger.Debug("Reconcile audit",
		slog.String("favid", favid),
		slog.Int("completed", len(completed)),
	)

	if !e.cfg.Sync.Reconcile.PruneStale || len(completed) == 0 {
		return nil
	}

	deleted, err := e.store.DeleteStale(ctx, favid, completed)
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		e.logger.Info("Reconcile pruned stale tasks",
			slog.String("favid", favid),
			slog.Int("pruned", len(deleted)),
			slog.Any("bvids", deleted),
		)
	}
	return nil
}
