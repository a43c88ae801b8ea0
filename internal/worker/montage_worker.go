package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeMontage identifies montage assembly tasks on the queue.
const TaskTypeMontage = "montage:assemble"

// QueueMontage is the FIFO queue all montage jobs flow through.
const QueueMontage = "montage"

type taskPayload struct {
	JobID string `json:"job_id"`
}

// NewMontageTask builds the queue task for a job id. Only the id travels on
// the queue; the job store is the source of truth for the request.
func NewMontageTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(taskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMontage, data), nil
}

// AsynqEnqueuer submits montage tasks to the queue. Whole jobs are never
// retried by the queue; resubmission is a caller decision.
type AsynqEnqueuer struct {
	client     *asynq.Client
	jobTimeout time.Duration
}

func NewAsynqEnqueuer(client *asynq.Client, jobTimeout time.Duration) *AsynqEnqueuer {
	if jobTimeout == 0 {
		jobTimeout = 15 * time.Minute
	}
	return &AsynqEnqueuer{client: client, jobTimeout: jobTimeout}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	task, err := NewMontageTask(jobID)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueMontage),
		asynq.MaxRetry(0),
		asynq.Timeout(e.jobTimeout+leaseGrace),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// MontageWorker adapts the Runner to the asynq handler contract.
type MontageWorker struct {
	runner *Runner
}

func NewMontageWorker(runner *Runner) *MontageWorker {
	return &MontageWorker{runner: runner}
}

// ProcessTask handles one montage task.
func (w *MontageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}
	return w.runner.Run(ctx, payload.JobID)
}
