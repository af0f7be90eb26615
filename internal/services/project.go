package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	types "github.com/mizukilab/kaiseki-backend/internal/domain"
	"github.com/mizukilab/kaiseki-backend/internal/platform/apierr"
	"github.com/mizukilab/kaiseki-backend/internal/platform/ctxutil"
	"github.com/mizukilab/kaiseki-backend/internal/platform/dbctx"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	pkgerr "github.com/mizukilab/kaiseki-backend/internal/pkg/errors"
)

// ProjectService owns projects and their membership. Every other
// service funnels its permission checks through Authorize, so the role
// lattice lives in exactly one place.
type ProjectService interface {
	CreateProject(ctx context.Context, name, description string) (*types.Project, error)
	GetProject(ctx context.Context, projectID uuid.UUID) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	UpdateProject(ctx context.Context, projectID uuid.UUID, name, description *string) error
	DeleteProject(ctx context.Context, projectID uuid.UUID) error

	AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) error
	RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]*types.ProjectMember, error)

	// Authorize verifies the calling user holds at least minRole on
	// the project. Non-members get ErrForbidden.
	Authorize(ctx context.Context, projectID uuid.UUID, minRole string) error
}

type projectService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo repos.ProjectRepo
	memberRepo  repos.ProjectMemberRepo
	userRepo    repos.UserRepo
}

func NewProjectService(db *gorm.DB, log *logger.Logger, projectRepo repos.ProjectRepo, memberRepo repos.ProjectMemberRepo, userRepo repos.UserRepo) ProjectService {
	return &projectService{
		db:          db,
		log:         log.With("service", "ProjectService"),
		projectRepo: projectRepo,
		memberRepo:  memberRepo,
		userRepo:    userRepo,
	}
}

func (ps *projectService) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "not_authenticated", pkgerr.ErrUnauthorized)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_name", fmt.Errorf("project name required: %w", pkgerr.ErrInvalidArgument))
	}

	project := &types.Project{
		ID:          uuid.New(),
		OwnerUserID: userID,
		Name:        name,
		Description: description,
	}
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if _, cErr := ps.projectRepo.Create(dbc, []*types.Project{project}); cErr != nil {
			return fmt.Errorf("create project: %w", cErr)
		}
		_, mErr := ps.memberRepo.Upsert(dbc, &types.ProjectMember{
			ID:        uuid.New(),
			ProjectID: project.ID,
			UserID:    userID,
			Role:      types.RoleOwner,
		})
		if mErr != nil {
			return fmt.Errorf("create owner membership: %w", mErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ps.log.Info("project created", "project_id", project.ID, "owner", userID)
	return project, nil
}

func (ps *projectService) GetProject(ctx context.Context, projectID uuid.UUID) (*types.Project, error) {
	if err := ps.Authorize(ctx, projectID, types.RoleViewer); err != nil {
		return nil, err
	}
	projects, err := ps.projectRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{projectID})
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if len(projects) == 0 {
		return nil, apierr.New(http.StatusNotFound, "project_not_found", pkgerr.ErrNotFound)
	}
	return projects[0], nil
}

func (ps *projectService) ListProjects(ctx context.Context) ([]*types.Project, error) {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "not_authenticated", pkgerr.ErrUnauthorized)
	}
	return ps.projectRepo.ListByMember(dbctx.New(ctx), userID)
}

func (ps *projectService) UpdateProject(ctx context.Context, projectID uuid.UUID, name, description *string) error {
	if err := ps.Authorize(ctx, projectID, types.RoleEditor); err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return apierr.New(http.StatusBadRequest, "empty_name", fmt.Errorf("project name required: %w", pkgerr.ErrInvalidArgument))
		}
		updates["name"] = trimmed
	}
	if description != nil {
		updates["description"] = *description
	}
	if len(updates) == 0 {
		return nil
	}
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ps.projectRepo.UpdateFields(dbctx.WithTx(ctx, tx), projectID, updates)
	})
}

func (ps *projectService) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	if err := ps.Authorize(ctx, projectID, types.RoleOwner); err != nil {
		return err
	}
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ps.projectRepo.Delete(dbctx.WithTx(ctx, tx), projectID)
	})
}

func (ps *projectService) AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) error {
	if err := ps.Authorize(ctx, projectID, types.RoleOwner); err != nil {
		return err
	}
	if types.RoleRank(role) == 0 {
		return apierr.New(http.StatusBadRequest, "invalid_role", fmt.Errorf("unknown role %q: %w", role, pkgerr.ErrInvalidArgument))
	}
	users, err := ps.userRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{userID})
	if err != nil {
		return fmt.Errorf("look up member: %w", err)
	}
	if len(users) == 0 {
		return apierr.New(http.StatusNotFound, "user_not_found", pkgerr.ErrNotFound)
	}
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if role != types.RoleOwner {
			if dErr := ps.ensureNotLastOwner(dbc, projectID, userID); dErr != nil {
				return dErr
			}
		}
		_, uErr := ps.memberRepo.Upsert(dbc, &types.ProjectMember{
			ID:        uuid.New(),
			ProjectID: projectID,
			UserID:    userID,
			Role:      role,
		})
		return uErr
	})
}

func (ps *projectService) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	callerID := ctxutil.UserID(ctx)
	// members may remove themselves; anything else takes owner
	if callerID != userID {
		if err := ps.Authorize(ctx, projectID, types.RoleOwner); err != nil {
			return err
		}
	} else if err := ps.Authorize(ctx, projectID, types.RoleViewer); err != nil {
		return err
	}
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if dErr := ps.ensureNotLastOwner(dbc, projectID, userID); dErr != nil {
			return dErr
		}
		return ps.memberRepo.Remove(dbc, projectID, userID)
	})
}

func (ps *projectService) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*types.ProjectMember, error) {
	if err := ps.Authorize(ctx, projectID, types.RoleViewer); err != nil {
		return nil, err
	}
	return ps.memberRepo.ListByProject(dbctx.New(ctx), projectID)
}

func (ps *projectService) Authorize(ctx context.Context, projectID uuid.UUID, minRole string) error {
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		return apierr.New(http.StatusUnauthorized, "not_authenticated", pkgerr.ErrUnauthorized)
	}
	role, err := ps.memberRepo.GetRole(dbctx.New(ctx), projectID, userID)
	if err != nil {
		return apierr.New(http.StatusForbidden, "not_a_member", pkgerr.ErrForbidden)
	}
	if types.RoleRank(role) < types.RoleRank(minRole) {
		return apierr.New(http.StatusForbidden, "insufficient_role",
			fmt.Errorf("requires %s, have %s: %w", minRole, role, pkgerr.ErrForbidden))
	}
	return nil
}

// ensureNotLastOwner blocks demoting or removing the project's only
// owner, which would strand the project.
func (ps *projectService) ensureNotLastOwner(dbc dbctx.Context, projectID, userID uuid.UUID) error {
	role, err := ps.memberRepo.GetRole(dbc, projectID, userID)
	if err != nil {
		// not a member yet; nothing to protect
		return nil
	}
	if role != types.RoleOwner {
		return nil
	}
	owners, err := ps.memberRepo.CountByRole(dbc, projectID, types.RoleOwner)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if owners <= 1 {
		return apierr.New(http.StatusConflict, "last_owner", fmt.Errorf("project needs at least one owner: %w", pkgerr.ErrConflict))
	}
	return nil
}
