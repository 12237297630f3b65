package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/cache"
	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/reconcile"
)

// RunStatus is the lifecycle state of an asynchronous pass.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunTTL is how long run records are kept.
const RunTTL = 24 * time.Hour

// ErrRunNotFound is returned for unknown or expired run ids.
var ErrRunNotFound = errors.New("run not found")

// RunRecord tracks an asynchronous pass.
type RunRecord struct {
	ID         string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Error      string    `json:"error,omitempty"`
	Report     *Report   `json:"report,omitempty"`
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
}

// RedisRuns keeps run records under epgsync:runs:<id> with RunTTL.
type RedisRuns struct {
	redis *cache.Redis
}

func NewRedisRuns(r *cache.Redis) *RedisRuns {
	return &RedisRuns{redis: r}
}

func runKey(id string) string { return cache.Key("runs", id) }

func (s *RedisRuns) SaveRun(ctx context.Context, rec RunRecord) error {
	return cache.Set(ctx, s.redis, runKey(rec.ID), rec, RunTTL)
}

func (s *RedisRuns) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec, err := cache.Get[RunRecord](ctx, s.redis, runKey(id))
	if cache.IsMiss(err) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MemoryRuns keeps run records in process. Records older than RunTTL are
// dropped on access.
type MemoryRuns struct {
	mu   sync.Mutex
	runs map[string]RunRecord
}

func NewMemoryRuns() *MemoryRuns {
	return &MemoryRuns{runs: make(map[string]RunRecord)}
}

func (s *MemoryRuns) SaveRun(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
	for id, r := range s.runs {
		if time.Since(r.UpdatedAt) > RunTTL {
			delete(s.runs, id)
		}
	}
	return nil
}

func (s *MemoryRuns) GetRun(_ context.Context, id string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok || time.Since(rec.UpdatedAt) > RunTTL {
		return nil, ErrRunNotFound
	}
	return &rec, nil
}

// Runner executes passes asynchronously. With Redis, jobs go through the
// reconcile queue and Work consumes them; without it they run in a
// goroutine of the submitting process.
type Runner struct {
	rec    *Reconciler
	runs   RunStore
	redis  *cache.Redis
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewRunner returns a Runner. redis may be nil.
func NewRunner(rec *Reconciler, runs RunStore, redis *cache.Redis, logger *zap.Logger) *Runner {
	return &Runner{rec: rec, runs: runs, redis: redis, logger: logging.Component(logger, "runner")}
}

// Submit records a queued run and schedules it.
func (r *Runner) Submit(ctx context.Context, req RunRequest) (*RunRecord, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	req.RunID = uuid.NewString()
	now := time.Now().UTC()
	rec := RunRecord{ID: req.RunID, Status: RunQueued, Mode: req.Mode(), DryRun: req.DryRun, EnqueuedAt: now, UpdatedAt: now}
	if err := r.runs.SaveRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	if r.redis != nil {
		if err := cache.Enqueue(ctx, r.redis, cache.ReconcileQueue, jobFromRequest(req, now)); err != nil {
			return nil, fmt.Errorf("enqueue run: %w", err)
		}
		return &rec, nil
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(context.Background(), req, rec.EnqueuedAt)
	}()
	return &rec, nil
}

// Get returns the record of a submitted run.
func (r *Runner) Get(ctx context.Context, id string) (*RunRecord, error) {
	return r.runs.GetRun(ctx, id)
}

// Wait blocks until in-process runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Work consumes the Redis queue until ctx is cancelled.
func (r *Runner) Work(ctx context.Context) {
	if r.redis == nil {
		return
	}
	r.logger.Info("worker started", zap.String("queue", cache.ReconcileQueue))
	for {
		if ctx.Err() != nil {
			r.logger.Info("worker stopped")
			return
		}
		job, err := cache.Dequeue(ctx, r.redis, cache.ReconcileQueue, 5*time.Second)
		if err != nil {
			r.logger.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		r.execute(ctx, requestFromJob(*job), job.EnqueuedAt)
	}
}

func (r *Runner) execute(ctx context.Context, req RunRequest, enqueued time.Time) {
	rec := RunRecord{ID: req.RunID, Status: RunRunning, Mode: req.Mode(), DryRun: req.DryRun, EnqueuedAt: enqueued, UpdatedAt: time.Now().UTC()}
	r.save(rec)

	rep, err := r.rec.Run(ctx, req)
	rec.UpdatedAt = time.Now().UTC()
	if err != nil {
		rec.Status, rec.Error = RunFailed, err.Error()
		r.logger.Warn("run failed", zap.String("run_id", req.RunID), zap.Error(err))
	} else {
		rec.Status, rec.Report = RunSucceeded, rep
	}
	r.save(rec)
}

func (r *Runner) save(rec RunRecord) {
	// ctx of the request may be gone by now
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.runs.SaveRun(ctx, rec); err != nil {
		r.logger.Warn("save run failed", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

func jobFromRequest(req RunRequest, at time.Time) cache.ReconcileJob {
	return cache.ReconcileJob{
		RunID:           req.RunID,
		AutoScan:        req.Options.AutoScan,
		Threshold:       req.Options.Threshold,
		RespectExisting: req.Options.RespectExisting,
		CleanUnmatched:  req.Options.CleanUnmatched,
		DryRun:          req.DryRun,
		EnqueuedAt:      at,
	}
}

func requestFromJob(job cache.ReconcileJob) RunRequest {
	return RunRequest{
		RunID:  job.RunID,
		DryRun: job.DryRun,
		Options: reconcile.Options{
			AutoScan:        job.AutoScan,
			Threshold:       job.Threshold,
			RespectExisting: job.RespectExisting,
			CleanUnmatched:  job.CleanUnmatched,
		},
	}
}
