package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"provider-sync/internal/broker"
	"provider-sync/internal/models"
	"provider-sync/internal/service"
	"provider-sync/internal/util"
)

// JobRunner executes queued sync jobs
type JobRunner interface {
	HandleJob(ctx context.Context, job *models.SyncJob) (service.SyncOutcome, error)
}

// SyncWorker consumes queued provider sync jobs
type SyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	runner       JobRunner
	timeout      time.Duration
	logger       *zap.Logger
}

// NewSyncWorker creates a worker that runs each job with its own timeout
func NewSyncWorker(consumer *broker.Consumer, runner JobRunner, timeout time.Duration) *SyncWorker {
	w := &SyncWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		runner:       runner,
		timeout:      timeout,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSyncJob(w.handle)
	return w
}

func (w *SyncWorker) handle(ctx context.Context, job *models.SyncJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	outcome, err := w.runner.HandleJob(ctx, job)
	if err != nil {
		return err
	}
	w.logger.Info("Sync job finished",
		zap.String("job_id", job.EventID),
		zap.String("order_id", job.OrderID),
		zap.String("result", outcome.Result),
		zap.Bool("stale", outcome.Stale))
	return nil
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	w.logger.Info("Stopping sync worker")
	return w.consumer.Close()
}
