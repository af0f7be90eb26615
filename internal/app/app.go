package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/mizukilab/kaiseki-backend/internal/agenttools"
	"github.com/mizukilab/kaiseki-backend/internal/data/db"
	"github.com/mizukilab/kaiseki-backend/internal/data/repos"
	"github.com/mizukilab/kaiseki-backend/internal/jobs"
	"github.com/mizukilab/kaiseki-backend/internal/observability"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
	"github.com/mizukilab/kaiseki-backend/internal/platform/storage"
	"github.com/mizukilab/kaiseki-backend/internal/realtime"
	"github.com/mizukilab/kaiseki-backend/internal/server"
)

type App struct {
	Log        *logger.Logger
	DB         *gorm.DB
	Cfg        Config
	Repos      repos.All
	Services   Services
	Hub        *realtime.Hub
	Bus        realtime.Bus
	Worker     *jobs.Worker
	AgentTools *agenttools.Registry
	Server     *server.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "kaiseki",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	dbSvc, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbSvc.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	store, err := storage.NewObjectStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	hub := realtime.NewHub(log)
	bus, err := realtime.NewBusFromEnv(ctx, log, hub)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	reposet := repos.NewAll(theDB, log)

	svcs, err := wireServices(theDB, log, cfg, reposet, store, bus)
	if err != nil {
		log.Sync()
		return nil, err
	}

	worker, err := wireWorker(theDB, log, reposet, store, bus)
	if err != nil {
		log.Sync()
		return nil, err
	}

	router := server.NewRouter(*wireRouter(log, svcs, hub))

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     svcs,
		Hub:          hub,
		Bus:          bus,
		Worker:       worker,
		AgentTools:   wireAgentTools(svcs.Analysis),
		Server:       server.New(log, router),
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and the job workers until ctx is canceled, then
// drains both.
func (a *App) Run(ctx context.Context) error {
	a.Worker.Start(ctx)

	err := a.Server.Run(ctx)

	a.Worker.Wait()
	if closeErr := a.Bus.Close(); closeErr != nil {
		a.Log.Warn("event bus close failed", "error", closeErr)
	}
	if a.otelShutdown != nil {
		if shutdownErr := a.otelShutdown(context.Background()); shutdownErr != nil {
			a.Log.Warn("otel shutdown failed", "error", shutdownErr)
		}
	}
	a.Log.Sync()
	return err
}
