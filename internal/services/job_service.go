package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
)

// JobService exposes background job status to callers polling their
// uploads.
type JobService interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error)
	GetLatestForFile(ctx context.Context, fileID uuid.UUID) (*types.IngestJob, error)
}

type jobService struct {
	log     *logger.Logger
	jobRepo repos.IngestJobRepo
	fileSvc FileService
}

func NewJobService(log *logger.Logger, jobRepo repos.IngestJobRepo, fileSvc FileService) JobService {
	return &jobService{
		log:     log.With("service", "JobService"),
		jobRepo: jobRepo,
		fileSvc: fileSvc,
	}
}

func (js *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*types.IngestJob, error) {
	jobs, err := js.jobRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{jobID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, apierr.New(http.StatusNotFound, "job_not_found", pkgerr.ErrNotFound)
	}
	job := jobs[0]
	if job.OwnerUserID != ctxutil.UserID(ctx) {
		return nil, apierr.New(http.StatusForbidden, "not_job_owner", pkgerr.ErrForbidden)
	}
	return job, nil
}

func (js *jobService) GetLatestForFile(ctx context.Context, fileID uuid.UUID) (*types.IngestJob, error) {
	// authorization rides on file visibility
	file, err := js.fileSvc.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	job, err := js.jobRepo.GetLatestByEntity(dbctx.New(ctx), file.UploadedBy, types.JobTypeFileIngest, fileID)
	if err != nil {
		return nil, apierr.New(http.StatusNotFound, "job_not_found", pkgerr.ErrNotFound)
	}
	return job, nil
}
