package app

import (
	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/agenttools"
	"github.com/mizukilab/kaiseki-backend/internal/charts"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	"github.com/mizukilab/kaiseki-backend/internal/engine"
	"github.com/mizukilab/kaiseki-backend/internal/http/handlers"
	"github.com/mizukilab/kaiseki-backend/internal/http/middleware"
	"github.com/mizukilab/kaiseki-backend/internal/jobs"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
	"github.com/mizukilab/kaiseki-backend/internal/server"
	"github.com/mizukilab/kaiseki-backend/internal/services"
)

type Services struct {
	Auth         services.AuthService
	User         services.UserService
	Project      services.ProjectService
	File         services.FileService
	Session      services.SessionService
	Chat         services.ChatService
	Analysis     services.AnalysisService
	Job          services.JobService
	DatasetStore services.DatasetStoreService
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet repos.All,
	store storage.ObjectStore,
	bus realtime.Bus,
) (Services, error) {
	chartsSvc, err := charts.NewService(log, store)
	if err != nil {
		return Services{}, err
	}
	datasetStore := services.NewDatasetStoreService(log, store)
	executor := engine.NewExecutor(datasetStore, chartsSvc, log)

	authSvc := services.NewAuthService(db, log, reposet.User, reposet.Token, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	userSvc := services.NewUserService(db, log, reposet.User, reposet.Token)
	projectSvc := services.NewProjectService(db, log, reposet.Project, reposet.Member, reposet.User)
	fileSvc := services.NewFileService(db, log, reposet.File, reposet.Job, projectSvc, store)
	sessionSvc := services.NewSessionService(db, log, reposet.Session, reposet.Step, reposet.Snap, reposet.File, projectSvc, datasetStore)
	chatSvc := services.NewChatService(db, log, reposet.Chat, reposet.Snap, sessionSvc, bus)
	analysisSvc := services.NewAnalysisService(db, log, reposet.Step, reposet.Snap, reposet.Chat, reposet.File, sessionSvc, datasetStore, executor, bus)
	jobSvc := services.NewJobService(log, reposet.Job, fileSvc)

	return Services{
		Auth:         authSvc,
		User:         userSvc,
		Project:      projectSvc,
		File:         fileSvc,
		Session:      sessionSvc,
		Chat:         chatSvc,
		Analysis:     analysisSvc,
		Job:          jobSvc,
		DatasetStore: datasetStore,
	}, nil
}

func wireWorker(
	db *gorm.DB,
	log *logger.Logger,
	reposet repos.All,
	store storage.ObjectStore,
	bus realtime.Bus,
) (*jobs.Worker, error) {
	registry := jobs.NewRegistry()
	if err := registry.Register(jobs.NewIngestHandler(db, log, reposet.File, store, bus)); err != nil {
		return nil, err
	}
	return jobs.NewWorker(log, reposet.Job, registry), nil
}

// wireAgentTools exposes the pipeline operations as a tool registry
// for assistant integrations.
func wireAgentTools(svc services.AnalysisService) *agenttools.Registry {
	registry := agenttools.NewRegistry()
	agenttools.RegisterAnalysisTools(registry, svc)
	return registry
}

func wireRouter(log *logger.Logger, svcs Services, hub *realtime.Hub) *server.RouterConfig {
	return &server.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.NewAuthMiddleware(log, svcs.Auth),
		AuthHandler:     handlers.NewAuthHandler(log, svcs.Auth),
		UserHandler:     handlers.NewUserHandler(log, svcs.User),
		ProjectHandler:  handlers.NewProjectHandler(log, svcs.Project),
		FileHandler:     handlers.NewFileHandler(log, svcs.File, svcs.Job),
		SessionHandler:  handlers.NewSessionHandler(log, svcs.Session),
		StepHandler:     handlers.NewStepHandler(log, svcs.Analysis),
		SnapshotHandler: handlers.NewSnapshotHandler(log, svcs.Analysis),
		ChatHandler:     handlers.NewChatHandler(log, svcs.Chat),
		JobHandler:      handlers.NewJobHandler(log, svcs.Job),
		RealtimeHandler: handlers.NewRealtimeHandler(log, hub, svcs.Session),
	}
}
