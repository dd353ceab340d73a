package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/collab"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

type apiServices struct {
	auth        *service.AuthService
	scheduling  *service.SchedulingService
	timetable   *service.TimetableService
	constraints *service.ConstraintService
	lockedSlots *service.LockedSlotService
	metrics     *service.MetricsService
	hub         *collab.Hub
	db          *sqlx.DB
	redis       *redis.Client
}

func newRouter(cfg *config.Config, logr *zap.Logger, svc apiServices) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(svc.metrics))
	}

	checks := map[string]handler.Pinger{"database": svc.db}
	if svc.redis != nil {
		client := svc.redis
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error { return cache.Ping(ctx, client) })
	}
	metricsHandler := handler.NewMetricsHandler(svc.metrics, checks)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", metricsHandler.Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(strings.TrimSuffix(cfg.APIPrefix, "/"))
	api.Use(middleware.JWT(svc.auth))

	editors := middleware.RequireRoles(middleware.SchedulerRoles...)
	viewers := middleware.RequireRoles(middleware.ViewerRoles...)

	schedulingHandler := handler.NewSchedulingHandler(svc.scheduling)
	constraintHandler := handler.NewConstraintHandler(svc.constraints, svc.lockedSlots)
	scheduling := api.Group("/scheduling")
	{
		scheduling.POST("/auto-schedule", editors, schedulingHandler.AutoSchedule)
		scheduling.GET("/jobs", viewers, schedulingHandler.ListJobs)
		scheduling.GET("/jobs/:id", viewers, schedulingHandler.GetJob)
		scheduling.POST("/jobs/:id/cancel", editors, schedulingHandler.CancelJob)

		scheduling.GET("/instructors/constraints", viewers, constraintHandler.ListInstructorConstraints)
		scheduling.GET("/instructors/:id/constraints", viewers, constraintHandler.GetInstructorConstraint)
		scheduling.PUT("/instructors/:id/constraints", editors, constraintHandler.PutInstructorConstraint)
		scheduling.GET("/subjects/constraints", viewers, constraintHandler.ListSubjectConstraints)
		scheduling.GET("/subjects/:id/constraints", viewers, constraintHandler.GetSubjectConstraint)
		scheduling.PUT("/subjects/:id/constraints", editors, constraintHandler.PutSubjectConstraint)

		scheduling.GET("/locked-slots", viewers, constraintHandler.ListLockedSlots)
		scheduling.POST("/locked-slots", editors, constraintHandler.CreateLockedSlot)
		scheduling.PUT("/locked-slots/:id", editors, constraintHandler.UpdateLockedSlot)
		scheduling.DELETE("/locked-slots/:id", editors, constraintHandler.DeleteLockedSlot)
	}

	timetableHandler := handler.NewTimetableHandler(svc.timetable)
	timetable := api.Group("/timetable/entries")
	{
		timetable.GET("", viewers, timetableHandler.List)
		timetable.POST("", editors, timetableHandler.Create)
		timetable.POST("/validate", viewers, timetableHandler.Validate)
		timetable.PUT("/:id", editors, timetableHandler.Update)
		timetable.DELETE("/:id", editors, timetableHandler.Delete)
	}

	if cfg.Realtime.Enabled {
		realtimeHandler := handler.NewRealtimeHandler(svc.hub, collab.ConnConfig{
			PingInterval:    cfg.Realtime.PingInterval,
			PongWait:        cfg.Realtime.PongWait,
			WriteTimeout:    cfg.Realtime.WriteTimeout,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		}, cfg.CORS.AllowedOrigins, logr.Named("realtime"))
		realtime := api.Group("/realtime/timetable/:semester_id", viewers)
		realtime.GET("/ws", realtimeHandler.Connect)
		realtime.GET("/events", realtimeHandler.Events)
	}

	api.GET("/metrics/summary", editors, metricsHandler.Summary)

	return r
}
