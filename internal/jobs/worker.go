package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/envutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// Worker polls the job table and dispatches claimed jobs to registered
// handlers. Claiming is an atomic status flip in the repo, so any
// number of worker processes can share the queue.
type Worker struct {
	log      *logger.Logger
	repo     repos.IngestJobRepo
	registry *Registry

	group *errgroup.Group
}

func NewWorker(baseLog *logger.Logger, repo repos.IngestJobRepo, registry *Registry) *Worker {
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.GetEnvAsInt(w.log, "WORKER_CONCURRENCY", 2)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("starting job worker pool", "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	w.group = g
	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
}

// Wait blocks until every loop has drained after the context ends.
func (w *Worker) Wait() {
	if w.group != nil {
		_ = w.group.Wait()
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	const maxAttempts = 5
	retryDelay := 30 * time.Second
	staleRunning := 30 * time.Minute

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.New(ctx), maxAttempts, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("claim next runnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}

			jc := NewContext(ctx, job, w.repo)
			h, ok := w.registry.Get(job.JobType)
			if !ok {
				w.log.Warn("no handler registered for job_type",
					"worker_id", workerID, "job_type", job.JobType, "job_id", job.ID)
				jc.Fail(fmt.Errorf("no handler registered for job_type=%s", job.JobType))
				continue
			}

			w.runOne(jc, h, workerID)
		}
	}
}

func (w *Worker) runOne(jc *Context, h Handler, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic",
				"worker_id", workerID, "job_id", jc.Job.ID, "job_type", jc.Job.JobType, "panic", r)
			jc.Fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// handlers normally call Fail themselves; this is the safety net
		w.log.Warn("job failed", "worker_id", workerID, "job_id", jc.Job.ID, "error", runErr)
		jc.Fail(runErr)
		return
	}
	w.log.Info("job finished", "worker_id", workerID, "job_id", jc.Job.ID, "job_type", jc.Job.JobType, "status", jc.Job.Status)
}
