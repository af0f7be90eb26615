package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type AnalysisSessionRepo interface {
	Create(dbc dbctx.Context, sessions []*types.AnalysisSession) ([]*types.AnalysisSession, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.AnalysisSession, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type analysisSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisSessionRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisSessionRepo {
	return &analysisSessionRepo{db: db, log: baseLog.With("repo", "AnalysisSessionRepo")}
}

func (r *analysisSessionRepo) Create(dbc dbctx.Context, sessions []*types.AnalysisSession) ([]*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sessions) == 0 {
		return []*types.AnalysisSession{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *analysisSessionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisSession
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

func (r *analysisSessionRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisSession
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *analysisSessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisSessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.AnalysisSession{}).Error
}
