package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"favsync/internal/domain"
)

// runProducer periodically scans the configured favorite lists and admits
// one task per item. A full cycle runs immediately on start, then on every
// tick of the sync interval.
func (e *Engine) runProducer(ctx context.Context) {
	defer e.loops.Done()

	ticker := time.NewTicker(e.cfg.Sync.Interval)
	defer ticker.Stop()

	e.produceCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Producer loop stopped")
			return
		case <-ticker.C:
			e.produceCycle(ctx)
		}
	}
}

// produceCycle walks every polled favorite list. A failure on one list is
// logged and does not stop the others.
func (e *Engine) produceCycle(ctx context.Context) {
	for _, favid := range e.cfg.PolledFavids() {
		if err := e.produceList(ctx, favid); err != nil {
			e.logger.Warn("Failed to sync favorite list",
				slog.String("favid", favid),
				slog.Any("error", err),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Engine) produceList(ctx context.Context, favid string) error {
	items, err := e.catalog.ListItems(ctx, favid)
	if err != nil {
		return err
	}

	list := e.cfg.FavoriteList(favid)
	admitted := 0
	for _, item := range items {
		if e.admit(ctx, item.Bvid, favid, list.Name) {
			admitted++
		}
	}

	e.logger.Debug("Favorite list synced",
		slog.String("favid", favid),
		slog.Int("items", len(items)),
		slog.Int("admitted", admitted),
	)
	return nil
}

// admit ensures a task exists for the item. Absent items get a fresh PENDING
// task; FAILED tasks with retry budget left are reset to PENDING; everything
// else is left alone. Returns true when a task was created or reset.
func (e *Engine) admit(ctx context.Context, bvid, favid, nameTemplate string) bool {
	taskKey := domain.MakeTaskKey(bvid, favid)

	existing, err := e.store.GetByKey(ctx, taskKey)
	if errors.Is(err, domain.ErrTaskNotFound) {
		payload, err := domain.TaskContext{
			Bvid:         bvid,
			Favid:        favid,
			NameTemplate: nameTemplate,
		}.Encode()
		if err != nil {
			e.logger.Error("Failed to encode task payload",
				slog.String("task_key", taskKey),
				slog.Any("error", err),
			)
			return false
		}

		_, err = e.store.Create(ctx, domain.TaskTypeMediaDownload, taskKey, payload)
		if errors.Is(err, domain.ErrDuplicateTask) {
			// Lost a race with another admitter; the task exists, which is
			// all we wanted.
			return false
		}
		if err != nil {
			e.logger.Error("Failed to create task",
				slog.String("task_key", taskKey),
				slog.Any("error", err),
			)
			return false
		}

		e.logger.Info("Task admitted",
			slog.String("task_key", taskKey),
			slog.String("bvid", bvid),
			slog.String("favid", favid),
		)
		return true
	}
	if err != nil {
		e.logger.Error("Failed to look up task",
			slog.String("task_key", taskKey),
			slog.Any("error", err),
		)
		return false
	}

	if existing.Status != domain.TaskStatusFailed {
		return false
	}
	if existing.RetryCount >= e.cfg.Sync.MaxRetries {
		e.logger.Debug("Task retry budget exhausted, leaving FAILED",
			slog.String("task_key", taskKey),
			slog.Int("retry_count", existing.RetryCount),
		)
		return false
	}

	if _, err := e.store.UpdateStatus(ctx, taskKey, domain.TaskStatusPending, ""); err != nil {
		e.logger.Error("Failed to reset failed task",
			slog.String("task_key", taskKey),
			slog.Any("error", err),
		)
		return false
	}

	e.logger.Info("Failed task reset for retry",
		slog.String("task_key", taskKey),
		slog.Int("retry_count", existing.RetryCount),
	)
	return true
}
