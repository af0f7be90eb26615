package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// AnalysisStepRepo persists pipeline steps. Steps have no soft delete:
// Delete and DeleteBySession remove rows outright, which is what lets a
// revert re-insert steps at their frozen orders without tripping the
// (session_id, step_order) unique index.
type AnalysisStepRepo interface {
	Create(dbc dbctx.Context, steps []*types.AnalysisStep) ([]*types.AnalysisStep, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.AnalysisStep, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AnalysisStep, error)
	MaxOrder(dbc dbctx.Context, sessionID uuid.UUID) (int, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type analysisStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisStepRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisStepRepo {
	return &analysisStepRepo{db: db, log: baseLog.With("repo", "AnalysisStepRepo")}
}

func (r *analysisStepRepo) Create(dbc dbctx.Context, steps []*types.AnalysisStep) ([]*types.AnalysisStep, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(steps) == 0 {
		return []*types.AnalysisStep{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *analysisStepRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.AnalysisStep, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisStep
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

func (r *analysisStepRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AnalysisStep, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisStep
	if err := transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("step_order ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MaxOrder returns the highest step_order in the session, or -1 when the
// session has no steps, so the next order is always MaxOrder+1.
func (r *analysisStepRepo) MaxOrder(dbc dbctx.Context, sessionID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var maxOrder int
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisStep{}).
		Select("COALESCE(MAX(step_order), -1)").
		Where("session_id = ?", sessionID).
		Scan(&maxOrder).Error; err != nil {
		return 0, err
	}
	return maxOrder, nil
}

func (r *analysisStepRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisStep{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisStepRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.AnalysisStep{}).Error
}

func (r *analysisStepRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Delete(&types.AnalysisStep{}).Error
}
