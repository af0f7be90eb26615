package files

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type DataFileRepo interface {
	Create(dbc dbctx.Context, files []*types.DataFile) ([]*types.DataFile, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DataFile, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.DataFile, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type dataFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataFileRepo(db *gorm.DB, baseLog *logger.Logger) DataFileRepo {
	return &dataFileRepo{db: db, log: baseLog.With("repo", "DataFileRepo")}
}

func (r *dataFileRepo) Create(dbc dbctx.Context, files []*types.DataFile) ([]*types.DataFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(files) == 0 {
		return []*types.DataFile{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *dataFileRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.DataFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DataFile
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

func (r *dataFileRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.DataFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DataFile
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataFileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DataFile{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dataFileRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.DataFile{}).Error
}
