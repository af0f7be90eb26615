package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mizukilab/kaiseki-backend/internal/http/handlers"
	"github.com/mizukilab/kaiseki-backend/internal/http/middleware"
	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	AuthMiddleware  *middleware.AuthMiddleware
	AuthHandler     *handlers.AuthHandler
	UserHandler     *handlers.UserHandler
	ProjectHandler  *handlers.ProjectHandler
	FileHandler     *handlers.FileHandler
	SessionHandler  *handlers.SessionHandler
	StepHandler     *handlers.StepHandler
	SnapshotHandler *handlers.SnapshotHandler
	ChatHandler     *handlers.ChatHandler
	JobHandler      *handlers.JobHandler
	RealtimeHandler *handlers.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Log))
	router.Use(otelgin.Middleware("kaiseki"))
	router.Use(middleware.AttachTraceContext())
	router.Use(middleware.RequestLogger(cfg.Log))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
		api.POST("/refresh", cfg.AuthHandler.Refresh)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	// Auth
	protected.POST("/logout", cfg.AuthHandler.Logout)

	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	protected.PUT("/user/name", cfg.UserHandler.UpdateName)
	protected.PUT("/user/password", cfg.UserHandler.ChangePassword)

	// Projects
	protected.POST("/projects", cfg.ProjectHandler.Create)
	protected.GET("/projects", cfg.ProjectHandler.List)
	protected.GET("/projects/:project_id", cfg.ProjectHandler.Get)
	protected.PUT("/projects/:project_id", cfg.ProjectHandler.Update)
	protected.DELETE("/projects/:project_id", cfg.ProjectHandler.Delete)
	protected.GET("/projects/:project_id/members", cfg.ProjectHandler.ListMembers)
	protected.POST("/projects/:project_id/members", cfg.ProjectHandler.AddMember)
	protected.DELETE("/projects/:project_id/members/:user_id", cfg.ProjectHandler.RemoveMember)

	// Files
	protected.POST("/projects/:project_id/files", cfg.FileHandler.Upload)
	protected.GET("/projects/:project_id/files", cfg.FileHandler.List)
	protected.GET("/files/:file_id", cfg.FileHandler.Get)
	protected.DELETE("/files/:file_id", cfg.FileHandler.Delete)
	protected.GET("/files/:file_id/jobs/latest", cfg.FileHandler.LatestJob)

	// Jobs
	protected.GET("/jobs/:job_id", cfg.JobHandler.Get)

	// Sessions
	protected.POST("/projects/:project_id/sessions", cfg.SessionHandler.Create)
	protected.GET("/projects/:project_id/sessions", cfg.SessionHandler.List)
	protected.GET("/sessions/:session_id", cfg.SessionHandler.Get)
	protected.PUT("/sessions/:session_id/name", cfg.SessionHandler.Rename)
	protected.DELETE("/sessions/:session_id", cfg.SessionHandler.Delete)

	// Pipeline
	protected.GET("/sessions/:session_id/steps", cfg.StepHandler.List)
	protected.POST("/sessions/:session_id/steps", cfg.StepHandler.Add)
	protected.PUT("/sessions/:session_id/steps/:order/config", cfg.StepHandler.SetConfig)
	protected.POST("/sessions/:session_id/steps/:order/execute", cfg.StepHandler.Execute)
	protected.DELETE("/sessions/:session_id/steps/:order", cfg.StepHandler.Delete)
	protected.GET("/sessions/:session_id/overview", cfg.StepHandler.DataOverview)
	protected.GET("/sessions/:session_id/steps/:order/overview", cfg.StepHandler.StepOverview)

	// Snapshots
	protected.POST("/sessions/:session_id/snapshots", cfg.SnapshotHandler.Save)
	protected.GET("/sessions/:session_id/snapshots", cfg.SnapshotHandler.List)
	protected.POST("/sessions/:session_id/snapshots/:index/revert", cfg.SnapshotHandler.Revert)

	// Chat
	protected.POST("/sessions/:session_id/chat", cfg.ChatHandler.Post)
	protected.GET("/sessions/:session_id/chat", cfg.ChatHandler.History)

	// Realtime
	protected.GET("/sessions/:session_id/events", cfg.RealtimeHandler.Stream)

	return router
}
