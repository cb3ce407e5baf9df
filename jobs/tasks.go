package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePurge is the task type for the soft-delete retention purge.
	TaskTypePurge = "retention:purge"
)

// PurgePayload carries the retention window for a purge run. Rows soft
// deleted longer ago than Retention are hard deleted.
type PurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewPurgeTask constructs an Asynq task for the retention purge.
func NewPurgeTask(payload PurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePurge, data), nil
}

// NewPurgeHandler binds the purge task to its runner.
func NewPurgeHandler(purger *Purger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		_, err := purger.Run(ctx, payload.Retention)
		return err
	}
}
