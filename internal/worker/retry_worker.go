package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"provider-sync/internal/service"
	"provider-sync/internal/util"
)

// Sweeper runs one retry sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// RetryWorker triggers retry sweeps on a cron schedule
type RetryWorker struct {
	cron    *cron.Cron
	sweeper Sweeper
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewRetryWorker schedules sweeps using a standard five-field cron spec.
// Overlapping runs are skipped.
func NewRetryWorker(schedule string, sweeper Sweeper) (*RetryWorker, error) {
	logger := util.GetLogger()
	cl := cronLogger{sugar: logger.Sugar()}

	w := &RetryWorker{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		logger:  logger,
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if _, err := w.cron.AddFunc(schedule, w.run); err != nil {
		return nil, fmt.Errorf("invalid retry schedule %q: %w", schedule, err)
	}
	return w, nil
}

func (w *RetryWorker) run() {
	res, err := w.sweeper.Sweep(w.ctx)
	if err != nil {
		w.logger.Error("Scheduled retry sweep failed", zap.Error(err))
		return
	}
	w.logger.Debug("Scheduled retry sweep done",
		zap.Int("processed", res.Processed),
		zap.Bool("skipped", res.Skipped))
}

// Start starts the schedule
func (w *RetryWorker) Start() {
	w.logger.Info("Starting retry worker")
	w.cron.Start()
}

// Stop stops scheduling and waits for a running sweep to finish
func (w *RetryWorker) Stop() {
	w.logger.Info("Stopping retry worker")
	w.cancel()
	<-w.cron.Stop().Done()
}
