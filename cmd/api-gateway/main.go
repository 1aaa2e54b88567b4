package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lunahq/bulkops-api/api/swagger"
	"github.com/lunahq/bulkops-api/internal/connector"
	"github.com/lunahq/bulkops-api/internal/handler"
	"github.com/lunahq/bulkops-api/internal/middleware"
	"github.com/lunahq/bulkops-api/internal/models"
	"github.com/lunahq/bulkops-api/internal/repository"
	"github.com/lunahq/bulkops-api/internal/service"
	"github.com/lunahq/bulkops-api/pkg/cache"
	"github.com/lunahq/bulkops-api/pkg/config"
	"github.com/lunahq/bulkops-api/pkg/database"
	"github.com/lunahq/bulkops-api/pkg/logger"
	corsmiddleware "github.com/lunahq/bulkops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lunahq/bulkops-api/pkg/middleware/requestid"
)

// @title BulkOps API
// @version 0.1.0
// @description Bulk mutation engine for CRM object stores
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Summary caching degrades to pass-through without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	historyRepo := repository.NewHistoryRepository(db, cfg.History.Retention)
	approvalRepo := repository.NewApprovalRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	storeConn := connector.NewRESTClient(cfg.Store, logr)

	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)
	metadataSvc := service.NewMetadataService(storeConn, logr)
	mutationValidator := service.NewMutationValidator(validator.New(), logr)
	historySvc := service.NewHistoryService(historyRepo, cacheRepo, cfg.History.SummaryCacheTTL, cfg.History.GroupLimit, logr)
	approvalSvc := service.NewApprovalService(approvalRepo, cfg.Approvals, logr)
	bulkSvc := service.NewBulkUpdateService(
		storeConn,
		metadataSvc,
		mutationValidator,
		approvalSvc,
		historySvc,
		cfg.Bulk,
		logr,
		service.WithBatchObserver(metricsSvc),
	)
	approvalSvc.BindExecutor(bulkSvc)
	revertSvc := service.NewRevertService(storeConn, historySvc, cfg.Bulk, metricsSvc, logr)

	mutationHandler := handler.NewMutationHandler(bulkSvc)
	historyHandler := handler.NewHistoryHandler(historySvc, revertSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		operators := middleware.RBAC(models.RoleAdmin, models.RoleOperator)
		admins := middleware.RBAC(models.RoleAdmin)

		api.POST("/mutations", operators, mutationHandler.Create)

		api.GET("/history", historyHandler.List)
		api.GET("/history/:id", historyHandler.Get)
		api.POST("/history/:id/revert", operators, historyHandler.Revert)

		api.GET("/approvals", approvalHandler.List)
		api.GET("/approvals/:id", approvalHandler.Get)
		api.POST("/approvals/:id/decision", admins, approvalHandler.Decide)
		api.POST("/approvals/:id/execute", operators, approvalHandler.Execute)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
