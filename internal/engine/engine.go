package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"favsync/internal/catalog"
	"favsync/internal/config"
	"favsync/internal/downloader"
	"favsync/internal/events"
	"favsync/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Options holds the engine's collaborators. Everything is passed in
// explicitly; the engine keeps no global state.
type Options struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      store.Store
	Catalog    catalog.Source
	Mutator    catalog.Mutator
	Downloader downloader.Downloader
	Publisher  events.Publisher
}

// Engine owns the job lifecycle: the producer that admits work from the
// catalog, the consumer that claims and dispatches it, the per-job executor
// bounded by the permit semaphore, and the reconciliation sweep.
type Engine struct {
	logger     *slog.Logger
	cfg        *config.Config
	store      store.Store
	catalog    catalog.Source
	mutator    catalog.Mutator
	downloader downloader.Downloader
	publisher  events.Publisher

	// sem caps how many jobs occupy the execution stage at once.
	sem        *semaphore.Weighted
	instanceID string

	loops sync.WaitGroup
	jobs  sync.WaitGroup
}

// New creates an engine from its options.
func New(opts *Options) *Engine {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Engine{
		logger:     opts.Logger,
		cfg:        opts.Config,
		store:      opts.Store,
		catalog:    opts.Catalog,
		mutator:    opts.Mutator,
		downloader: opts.Downloader,
		publisher:  publisher,
		sem:        semaphore.NewWeighted(int64(opts.Config.Sync.MaxConcurrentTasks)),
		instanceID: uuid.New().String(),
	}
}

// Start launches the background loops. It returns immediately; the loops run
// until ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting sync engine",
		slog.String("instance_id", e.instanceID),
		slog.Duration("producer_interval", e.cfg.Sync.Interval),
		slog.Duration("poll_interval", e.cfg.Sync.PollInterval),
		slog.Duration("task_timeout", e.cfg.Sync.TaskTimeout),
		slog.Int("max_concurrent_tasks", e.cfg.Sync.MaxConcurrentTasks),
	)

	e.loops.Add(2)
	go e.runProducer(ctx)
	go e.runConsumer(ctx)

	if e.cfg.Sync.Reconcile.Enabled {
		e.loops.Add(1)
		go e.runReconciler(ctx)
	}
}

// Stop waits for the loops and every in-flight job to finish. Callers cancel
// the Start context first.
func (e *Engine) Stop() {
	e.logger.Info("Stopping sync engine, waiting for in-flight tasks")
	e.loops.Wait()
	e.jobs.Wait()
	e.logger.Info("Sync engine stopped")
}

// transition updates a task's status and emits the lifecycle event. The store
// write uses a detached context so a final status is recorded even during
// shutdown.
func (e *Engine) transition(oldStatus, taskKey, newStatus, errMsg string) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := e.store.UpdateStatus(writeCtx, taskKey, newStatus, errMsg)
	if err != nil {
		e.logger.Error("Failed to update task status",
			slog.String("task_key", taskKey),
			slog.String("status", newStatus),
			slog.Any("error", err),
		)
		return
	}

	e.publisher.PublishStatusChange(writeCtx, events.StatusEvent{
		TaskKey:      task.TaskKey,
		TaskType:     task.TaskType,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
		ErrorMessage: errMsg,
	})
}
