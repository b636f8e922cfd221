package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sweethome/ledger/internal/jobs"
	"github.com/sweethome/ledger/internal/ledger"
)

// OverdueScanJob reclassifies every open charge and publishes the counts to
// the collection gauges. Runs nightly from the scheduler.
type OverdueScanJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob wires dependencies for the scan handler.
func NewOverdueScanJob(svc *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Ledger:  svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes overdue scan tasks.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	asOf := j.clock()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskOverdueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	counts, err := j.Ledger.OverdueCounts(ctx, asOf)
	if err != nil {
		resultErr = err
		return err
	}

	for _, class := range []ledger.OverdueClass{
		ledger.ClassLegacy, ledger.ClassCritical, ledger.ClassRecent,
		ledger.ClassDueToday, ledger.ClassUpcoming,
	} {
		j.metrics().SetOverdue(string(class), counts[class])
	}

	j.logger().Info("overdue scan complete",
		slog.String("as_of", asOf.Format("2006-01-02")),
		slog.Int("critical", counts[ledger.ClassCritical]),
		slog.Int("recent", counts[ledger.ClassRecent]),
		slog.Int("due_today", counts[ledger.ClassDueToday]),
		slog.Int("legacy", counts[ledger.ClassLegacy]),
	)
	return nil
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
