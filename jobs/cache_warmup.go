package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sweethome/ledger/internal/jobs"
	"github.com/sweethome/ledger/internal/ledger"
)

// CacheWarmupJob preloads the open-charge cache so the first statement view
// of the day does not pay the cold-read cost.
type CacheWarmupJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(svc *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{Ledger: svc, Logger: logger, Metrics: metrics}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("cache warmup: handler not configured")
	}

	tracker := j.metrics().Track(TaskCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	warmed, err := j.Ledger.WarmCaches(ctx)
	if err != nil {
		resultErr = err
		return err
	}

	j.logger().Info("cache warmup complete", slog.Int("customers", warmed))
	return nil
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
