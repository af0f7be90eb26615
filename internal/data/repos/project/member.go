package project

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type ProjectMemberRepo interface {
	// Upsert inserts the membership or, when the (project, user) pair
	// already exists, updates its role and clears any soft delete so a
	// removed member can be re-added.
	Upsert(dbc dbctx.Context, member *types.ProjectMember) (*types.ProjectMember, error)
	GetRole(dbc dbctx.Context, projectID, userID uuid.UUID) (string, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectMember, error)
	CountByRole(dbc dbctx.Context, projectID uuid.UUID, role string) (int64, error)
	Remove(dbc dbctx.Context, projectID, userID uuid.UUID) error
}

type projectMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectMemberRepo(db *gorm.DB, baseLog *logger.Logger) ProjectMemberRepo {
	return &projectMemberRepo{db: db, log: baseLog.With("repo", "ProjectMemberRepo")}
}

func (r *projectMemberRepo) Upsert(dbc dbctx.Context, member *types.ProjectMember) (*types.ProjectMember, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"role":       member.Role,
				"deleted_at": nil,
			}),
		}).
		Create(member).Error; err != nil {
		return nil, err
	}
	return member, nil
}

func (r *projectMemberRepo) GetRole(dbc dbctx.Context, projectID, userID uuid.UUID) (string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var m types.ProjectMember
	err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Limit(1).
		Find(&m).Error
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (r *projectMemberRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectMember, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProjectMember
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectMemberRepo) CountByRole(dbc dbctx.Context, projectID uuid.UUID, role string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.ProjectMember{}).
		Where("project_id = ? AND role = ?", projectID, role).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *projectMemberRepo) Remove(dbc dbctx.Context, projectID, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&types.ProjectMember{}).Error
}
