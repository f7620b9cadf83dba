package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jobpulse/jobpulse/pkg/apiserver/handlers"
	"github.com/jobpulse/jobpulse/pkg/apiserver/middleware"
	"github.com/jobpulse/jobpulse/pkg/auth"
	"github.com/jobpulse/jobpulse/pkg/config"
	"github.com/jobpulse/jobpulse/pkg/definition"
	"github.com/jobpulse/jobpulse/pkg/engine"
	"github.com/jobpulse/jobpulse/pkg/eventbus"
	"github.com/jobpulse/jobpulse/pkg/execution"
	"github.com/jobpulse/jobpulse/pkg/reconciler"
	"github.com/jobpulse/jobpulse/pkg/store/postgres"
	redisclient "github.com/jobpulse/jobpulse/pkg/store/redis"
)

type Server struct {
	router *gin.Engine
	db     *postgres.Store
	redis  *redisclient.Client
	cfg    *config.Config
	logger *zap.Logger
	bus    *eventbus.Bus
}

func NewServer(db *postgres.Store, redis *redisclient.Client, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		db:     db,
		redis:  redis,
		cfg:    cfg,
		logger: logger,
	}
	if redis != nil {
		s.bus = eventbus.NewBus(redis.Client())
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	var gdb *gorm.DB
	if s.db != nil {
		gdb = s.db.DB()
	}
	users := postgres.NewUserRepository(gdb)
	configs := postgres.NewWorkflowConfigRepository(gdb)
	executions := postgres.NewExecutionRepository(gdb)
	presets := postgres.NewPresetRepository(gdb)
	results := postgres.NewJobResultRepository(gdb)

	tokens := auth.NewTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)
	engineClient := engine.NewClient(s.cfg.Engine, s.logger)
	loader := definition.NewLoader(s.cfg.Static.Dir)
	provisioner := definition.NewProvisioner(loader, s.cfg.Static.DefaultWorkflowFile, configs, presets, s.logger)
	orchestrator := execution.NewOrchestrator(
		engineClient, configs, executions, presets, results,
		s.bus, s.cfg.Static.DefaultWorkflowFile, s.logger)
	rec := reconciler.NewReconciler(configs, users, orchestrator, s.logger, s.cfg.Reconciler.Interval)

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(users, tokens, provisioner, s.logger)
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		api.Use(middleware.Auth(tokens))
		api.GET("/auth/me", authHandler.Me)

		workflowHandler := handlers.NewWorkflowHandler(configs, engineClient, provisioner, s.logger)
		api.GET("/workflows", workflowHandler.List)
		api.POST("/workflows", workflowHandler.Create)
		api.GET("/workflows/active", workflowHandler.ListActive)
		api.GET("/workflows/default", workflowHandler.GetDefault)
		api.POST("/workflows/default/sync", workflowHandler.SyncDefault)
		api.GET("/workflows/:id", workflowHandler.Get)
		api.PUT("/workflows/:id", workflowHandler.Update)
		api.DELETE("/workflows/:id", workflowHandler.Delete)
		api.PATCH("/workflows/:id/activate", workflowHandler.Activate)
		api.GET("/workflows/:id/json", workflowHandler.ExportJSON)

		executionHandler := handlers.NewExecutionHandler(
			executions, results, users, orchestrator, rec, s.bus, s.logger)
		api.GET("/executions", executionHandler.List)
		api.POST("/executions", executionHandler.Create)
		api.GET("/executions/export", executionHandler.ExportCSV)
		api.GET("/executions/:id", executionHandler.Get)
		api.POST("/executions/:id/cancel", executionHandler.Cancel)
		api.PATCH("/executions/:id/status", executionHandler.UpdateStatus)
		api.GET("/executions/:id/events", executionHandler.Events)
		api.GET("/results", executionHandler.ListResults)
		api.POST("/reconcile", executionHandler.Reconcile)

		presetHandler := handlers.NewPresetHandler(presets, configs, provisioner, s.logger)
		api.GET("/presets", presetHandler.List)
		api.POST("/presets", presetHandler.Create)
		api.DELETE("/presets/:id", presetHandler.Delete)
		api.POST("/presets/initialize", presetHandler.Initialize)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
