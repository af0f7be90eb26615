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

// SessionService owns analysis session lifecycle. A session binds one
// ready data file to a pipeline; the pipeline itself is the analysis
// service's business.
type SessionService interface {
	CreateSession(ctx context.Context, projectID, fileID uuid.UUID, name string) (*types.AnalysisSession, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*types.AnalysisSession, error)
	ListSessions(ctx context.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error)
	RenameSession(ctx context.Context, sessionID uuid.UUID, name string) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error

	// AuthorizeSession resolves the session and checks the caller's
	// role on its project in one call.
	AuthorizeSession(ctx context.Context, sessionID uuid.UUID, minRole string) (*types.AnalysisSession, error)
}

type sessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	sessionRepo  repos.AnalysisSessionRepo
	stepRepo     repos.AnalysisStepRepo
	snapRepo     repos.SessionSnapshotRepo
	fileRepo     repos.DataFileRepo
	projectSvc   ProjectService
	datasetStore DatasetStoreService
}

func NewSessionService(
	db *gorm.DB,
	log *logger.Logger,
	sessionRepo repos.AnalysisSessionRepo,
	stepRepo repos.AnalysisStepRepo,
	snapRepo repos.SessionSnapshotRepo,
	fileRepo repos.DataFileRepo,
	projectSvc ProjectService,
	datasetStore DatasetStoreService,
) SessionService {
	return &sessionService{
		db:           db,
		log:          log.With("service", "SessionService"),
		sessionRepo:  sessionRepo,
		stepRepo:     stepRepo,
		snapRepo:     snapRepo,
		fileRepo:     fileRepo,
		projectSvc:   projectSvc,
		datasetStore: datasetStore,
	}
}

func (ss *sessionService) CreateSession(ctx context.Context, projectID, fileID uuid.UUID, name string) (*types.AnalysisSession, error) {
	if err := ss.projectSvc.Authorize(ctx, projectID, types.RoleEditor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_name", fmt.Errorf("session name required: %w", pkgerr.ErrInvalidArgument))
	}

	files, err := ss.fileRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{fileID})
	if err != nil {
		return nil, fmt.Errorf("get data file: %w", err)
	}
	if len(files) == 0 || files[0].ProjectID != projectID {
		return nil, apierr.New(http.StatusNotFound, "file_not_found", pkgerr.ErrNotFound)
	}
	if files[0].Status != types.FileStatusReady {
		return nil, apierr.New(http.StatusConflict, "file_not_ready",
			fmt.Errorf("data file is %s, not ready: %w", files[0].Status, pkgerr.ErrConflict))
	}

	session := &types.AnalysisSession{
		ID:         uuid.New(),
		ProjectID:  projectID,
		DataFileID: fileID,
		CreatedBy:  ctxutil.UserID(ctx),
		Name:       name,
	}
	err = ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, cErr := ss.sessionRepo.Create(dbctx.WithTx(ctx, tx), []*types.AnalysisSession{session})
		return cErr
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ss.log.Info("session created", "session_id", session.ID, "project_id", projectID, "file_id", fileID)
	return session, nil
}

func (ss *sessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	return ss.AuthorizeSession(ctx, sessionID, types.RoleViewer)
}

func (ss *sessionService) ListSessions(ctx context.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error) {
	if err := ss.projectSvc.Authorize(ctx, projectID, types.RoleViewer); err != nil {
		return nil, err
	}
	return ss.sessionRepo.ListByProject(dbctx.New(ctx), projectID)
}

func (ss *sessionService) RenameSession(ctx context.Context, sessionID uuid.UUID, name string) error {
	if _, err := ss.AuthorizeSession(ctx, sessionID, types.RoleEditor); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apierr.New(http.StatusBadRequest, "empty_name", fmt.Errorf("session name required: %w", pkgerr.ErrInvalidArgument))
	}
	return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ss.sessionRepo.UpdateFields(dbctx.WithTx(ctx, tx), sessionID, map[string]interface{}{"name": name})
	})
}

// DeleteSession removes the session row with its steps and snapshot
// history, then clears the session's stored artifacts. Storage cleanup
// runs after the commit; an orphaned object is preferable to a row
// pointing at deleted data.
func (ss *sessionService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := ss.AuthorizeSession(ctx, sessionID, types.RoleEditor); err != nil {
		return err
	}
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if sErr := ss.stepRepo.DeleteBySession(dbc, sessionID); sErr != nil {
			return fmt.Errorf("delete steps: %w", sErr)
		}
		if snErr := ss.snapRepo.DeleteBySession(dbc, sessionID); snErr != nil {
			return fmt.Errorf("delete snapshots: %w", snErr)
		}
		return ss.sessionRepo.Delete(dbc, sessionID)
	})
	if err != nil {
		return err
	}
	if dErr := ss.datasetStore.DeleteSession(ctx, sessionID); dErr != nil {
		ss.log.Warn("failed to delete session artifacts", "session_id", sessionID, "error", dErr)
	}
	return nil
}

func (ss *sessionService) AuthorizeSession(ctx context.Context, sessionID uuid.UUID, minRole string) (*types.AnalysisSession, error) {
	sessions, err := ss.sessionRepo.GetByIDs(dbctx.New(ctx), []uuid.UUID{sessionID})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, apierr.New(http.StatusNotFound, "session_not_found", pkgerr.ErrNotFound)
	}
	if err := ss.projectSvc.Authorize(ctx, sessions[0].ProjectID, minRole); err != nil {
		return nil, err
	}
	return sessions[0], nil
}
