package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type IngestJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.IngestJob) ([]*types.IngestJob, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.IngestJob, error)
	GetLatestByEntity(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityID uuid.UUID) (*types.IngestJob, error)
	// ClaimNextRunnable picks the oldest runnable job and marks it
	// running in one transaction. Runnable means pending, failed with
	// attempts left after retryDelay, or running with a lock older than
	// staleRunning.
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.IngestJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type ingestJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) IngestJobRepo {
	return &ingestJobRepo{db: db, log: baseLog.With("repo", "IngestJobRepo")}
}

func (r *ingestJobRepo) Create(dbc dbctx.Context, jobs []*types.IngestJob) ([]*types.IngestJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.IngestJob{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *ingestJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.IngestJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.IngestJob
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestJobRepo) GetLatestByEntity(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityID uuid.UUID) (*types.IngestJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || jobType == "" || entityID == uuid.Nil {
		return nil, nil
	}
	var job types.IngestJob
	err := transaction.WithContext(dbc.Ctx).
		Where("owner_user_id = ? AND job_type = ? AND entity_id = ?", ownerUserID, jobType, entityID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *ingestJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.IngestJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.IngestJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND updated_at < ?
          )
          OR (
            status = ?
            AND locked_at IS NOT NULL
            AND locked_at < ?
          )
        )
      `, types.JobStatusPending, types.JobStatusFailed, maxAttempts, retryCutoff, types.JobStatusRunning, staleCutoff).
			Order("created_at ASC").
			Limit(1)
		// SKIP LOCKED keeps concurrent workers off the same row; sqlite
		// has no row locks, and a single dev process needs none.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var job types.IngestJob
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == uuid.Nil {
			return nil
		}
		if err := txx.Model(&types.IngestJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":    types.JobStatusRunning,
				"locked_at": now,
				"attempts":  gorm.Expr("attempts + 1"),
				"error":     "",
			}).Error; err != nil {
			return err
		}
		job.Status = types.JobStatusRunning
		job.LockedAt = &now
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *ingestJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.IngestJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ingestJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.IngestJob{}).
		Where("id = ?", id).
		Update("locked_at", time.Now()).Error
}
