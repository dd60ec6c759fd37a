package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"favsync/internal/catalog"
	"favsync/internal/domain"
	"favsync/internal/downloader"
)

// execute runs one claimed task end to end: acquire a permit, download within
// the task timeout, run the postprocess chain, and record the terminal status.
func (e *Engine) execute(ctx context.Context, taskKey string, taskCtx domain.TaskContext) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		// Shutdown before the task got a permit. Put it back so a later run
		// picks it up.
		e.logger.Warn("Releasing unstarted task on shutdown", slog.String("task_key", taskKey))
		e.transition(domain.TaskStatusExecuting, taskKey, domain.TaskStatusPending, "")
		return
	}
	defer e.sem.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Sync.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := e.runTask(execCtx, taskCtx)

	switch {
	case err == nil:
		e.logger.Info("Task completed",
			slog.String("task_key", taskKey),
			slog.Duration("elapsed", time.Since(start)),
		)
		e.transition(domain.TaskStatusExecuting, taskKey, domain.TaskStatusCompleted, "")

	case errors.Is(err, context.DeadlineExceeded), errors.Is(execCtx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("timed out after %s", e.cfg.Sync.TaskTimeout)
		e.logger.Warn("Task timed out",
			slog.String("task_key", taskKey),
			slog.Duration("task_timeout", e.cfg.Sync.TaskTimeout),
		)
		e.transition(domain.TaskStatusExecuting, taskKey, domain.TaskStatusFailed, msg)

	case errors.Is(err, context.Canceled):
		// Shutdown mid-download. The work was interrupted, not broken; hand
		// the task back to a later run.
		e.logger.Warn("Task interrupted by shutdown", slog.String("task_key", taskKey))
		e.transition(domain.TaskStatusExecuting, taskKey, domain.TaskStatusPending, "")

	default:
		e.logger.Error("Task failed",
			slog.String("task_key", taskKey),
			slog.Any("error", err),
		)
		e.transition(domain.TaskStatusExecuting, taskKey, domain.TaskStatusFailed, err.Error())
	}
}

// runTask performs the download and the list's postprocess chain.
func (e *Engine) runTask(ctx context.Context, taskCtx domain.TaskContext) error {
	list := e.cfg.FavoriteList(taskCtx.Favid)
	dest := downloader.ResolvePathTemplate(list.Path, time.Now(), e.logger)

	batch := taskCtx.Batch
	info, err := e.catalog.VideoInfo(ctx, taskCtx.Bvid)
	if err != nil {
		// Metadata is only used to pick batch mode; fall back to the payload
		// hint rather than failing the download.
		e.logger.Warn("Failed to fetch video info, using payload batch hint",
			slog.String("bvid", taskCtx.Bvid),
			slog.Any("error", err),
		)
	} else if info.Parts > 1 {
		batch = true
	}

	nameTemplate := taskCtx.NameTemplate
	if nameTemplate == "" {
		nameTemplate = list.Name
	}

	if err := e.downloader.Download(ctx, downloader.Request{
		Bvid:         taskCtx.Bvid,
		Dest:         dest,
		Batch:        batch,
		NameTemplate: nameTemplate,
	}); err != nil {
		return fmt.Errorf("download %s: %w", taskCtx.Bvid, err)
	}

	return e.postprocess(ctx, taskCtx, info, list.Postprocess)
}

// postprocess applies the list's configured actions in order. Any failure
// fails the task; the producer's retry reset will re-run the whole task.
func (e *Engine) postprocess(ctx context.Context, taskCtx domain.TaskContext, info *catalog.VideoInfo, actions []domain.PostprocessAction) error {
	if len(actions) == 0 {
		return nil
	}

	var aid int64
	if info != nil {
		aid = info.Aid
	}
	if aid == 0 {
		var err error
		aid, err = e.mutator.ResolveAid(ctx, taskCtx.Bvid)
		if err != nil {
			return fmt.Errorf("resolve aid for %s: %w", taskCtx.Bvid, err)
		}
	}

	for _, action := range actions {
		switch action.Kind {
		case domain.PostprocessMove:
			if err := e.mutator.Move(ctx, aid, taskCtx.Favid, action.TargetFid); err != nil {
				return fmt.Errorf("move %s to %s: %w", taskCtx.Bvid, action.TargetFid, err)
			}
			e.logger.Info("Postprocess moved item",
				slog.String("bvid", taskCtx.Bvid),
				slog.String("from_fid", taskCtx.Favid),
				slog.String("to_fid", action.TargetFid),
			)
		case domain.PostprocessRemove:
			if err := e.mutator.Remove(ctx, aid, taskCtx.Favid); err != nil {
				return fmt.Errorf("remove %s from %s: %w", taskCtx.Bvid, taskCtx.Favid, err)
			}
			e.logger.Info("Postprocess removed item",
				slog.String("bvid", taskCtx.Bvid),
				slog.String("fid", taskCtx.Favid),
			)
		default:
			return fmt.Errorf("unknown postprocess action %q", action.Kind)
		}
	}
	return nil
}
