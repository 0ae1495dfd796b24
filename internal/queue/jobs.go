package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ReclaimSharesTask triggers one reclamation sweep. The scheduler enqueues
	// it on a cron spec; the CLI can also enqueue it on demand.
	ReclaimSharesTask = "share:reclaim"
)

// ReclaimPayload records when the sweep was requested, mostly for operator
// visibility in the asynq dashboard.
type ReclaimPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewReclaimTask builds the periodic sweep task.
func NewReclaimTask() (*asynq.Task, error) {
	data, err := json.Marshal(ReclaimPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ReclaimSharesTask, data), nil
}

// EnqueueReclaim enqueues an immediate sweep.
func EnqueueReclaim(ctx context.Context, client *asynq.Client) error {
	task, err := NewReclaimTask()
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue reclaim task: %w", err)
	}
	return nil
}
