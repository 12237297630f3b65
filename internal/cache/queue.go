package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReconcileJob is an asynchronous reconciliation pass waiting for the worker.
type ReconcileJob struct {
	RunID           string    `json:"run_id"`
	AutoScan        bool      `json:"auto_scan"`
	Threshold       float64   `json:"threshold"`
	RespectExisting bool      `json:"respect_existing"`
	CleanUnmatched  bool      `json:"clean_unmatched"`
	DryRun          bool      `json:"dry_run"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// ReconcileQueue is the Redis list holding pending ReconcileJobs.
var ReconcileQueue = Key("jobs", "reconcile")

// Enqueue pushes job onto the left side of queue.
func Enqueue(ctx context.Context, r *Redis, queue string, job ReconcileJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return r.client.LPush(ctx, queue, data).Err()
}

// Dequeue blocks until a job is available or timeout expires. A timeout or a
// cancelled ctx yields (nil, nil) so the caller can loop and check for
// shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*ReconcileJob, error) {
	result, err := r.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// [key, value]
	if len(result) < 2 {
		return nil, nil
	}
	var job ReconcileJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}
