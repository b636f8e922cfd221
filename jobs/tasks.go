package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan classifies every open charge and refreshes the
	// collection gauges.
	TaskOverdueScan = "ledger:overdue-scan"
	// TaskCacheWarmup preloads the open-charge cache for indebted customers.
	TaskCacheWarmup = "ledger:cache-warmup"
)

// OverdueScanPayload configures one overdue scan run.
type OverdueScanPayload struct {
	// AsOf is the reference date in YYYY-MM-DD form; empty means today.
	AsOf string `json:"as_of,omitempty"`
}

// NewOverdueScanTask constructs an Asynq task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// NewCacheWarmupTask constructs an Asynq task.
func NewCacheWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskCacheWarmup, nil)
}
