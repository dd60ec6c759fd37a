package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"favsync/internal/domain"
	"favsync/internal/events"
)

// runConsumer polls the store for PENDING tasks and dispatches each claimed
// task to an executor goroutine. On a store error the loop backs off before
// polling again.
func (e *Engine) runConsumer(ctx context.Context) {
	defer e.loops.Done()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Consumer loop stopped")
			return
		default:
		}

		if err := e.consumeCycle(ctx); err != nil {
			e.logger.Error("Consumer cycle failed", slog.Any("error", err))
			e.sleep(ctx, 5*e.cfg.Sync.PollInterval)
			continue
		}

		e.sleep(ctx, e.cfg.Sync.PollInterval)
	}
}

// consumeCycle claims every currently PENDING task and hands each one to an
// executor goroutine. The claim is the atomic hand-off: a task lost to a
// concurrent claimer is simply skipped.
func (e *Engine) consumeCycle(ctx context.Context) error {
	pending, err := e.store.ListPending(ctx, 0)
	if err != nil {
		return err
	}

	for _, task := range pending {
		claimed, err := e.store.ClaimPending(ctx, task.TaskKey)
		if errors.Is(err, domain.ErrTaskAlreadyClaimed) || errors.Is(err, domain.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		e.publisher.PublishStatusChange(ctx, events.StatusEvent{
			TaskKey:   claimed.TaskKey,
			TaskType:  claimed.TaskType,
			OldStatus: domain.TaskStatusPending,
			NewStatus: domain.TaskStatusExecuting,
		})

		e.dispatch(ctx, claimed)
	}
	return nil
}

// dispatch decodes the claimed task's payload and starts its executor. A
// payload that cannot be decoded fails the task immediately; retrying it
// would never succeed.
func (e *Engine) dispatch(ctx context.Context, task *domain.Task) {
	taskCtx, err := domain.DecodeTaskContext(task.Payload)
	if err != nil {
		e.logger.Error("Claimed task has invalid payload",
			slog.String("task_key", task.TaskKey),
			slog.Any("error", err),
		)
		e.transition(domain.TaskStatusExecuting, task.TaskKey, domain.TaskStatusFailed, "invalid payload: "+err.Error())
		return
	}

	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		e.execute(ctx, task.TaskKey, taskCtx)
	}()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
