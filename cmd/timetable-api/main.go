package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/collab"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Automatic timetable scheduling and collaborative timetable editing.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	logr.Info("database ready", zap.String("database", cfg.Database.Name), zap.Bool("migrated", cfg.Database.AutoMigrate))

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()

	hub := collab.NewHub(collab.HubConfig{SendBuffer: cfg.Realtime.SendBuffer}, metrics, logr.Named("collab"))
	defer hub.Close()
	relay := collab.NewRefreshRelay(redisClient, cfg.Realtime.RelayChannel, hub, metrics, logr.Named("relay"))

	jobRepo := repository.NewSchedulingJobRepository(db)
	entryRepo := repository.NewTimetableEntryRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	instructorRepo := repository.NewInstructorConstraintRepository(db)
	subjectRepo := repository.NewSubjectConstraintRepository(db)
	lockRepo := repository.NewLockedSlotRepository(db)

	defaults, err := schedulingDefaults(cfg.Scheduler)
	if err != nil {
		return err
	}

	loader := service.NewProblemLoader(courseRepo, instructorRepo, lockRepo, entryRepo)
	runs := service.NewRunRegistry()
	worker := service.NewSchedulingWorker(jobRepo, loader, scheduler.NewEngine(logr.Named("engine")), entryRepo, db, runs, relay, metrics, logr.Named("worker"))
	queue := jobs.NewQueue("scheduling", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Scheduler.Workers,
		BufferSize: cfg.Scheduler.QueueSize,
		Logger:     logr,
	})

	services := apiServices{
		auth: service.NewAuthService(logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
		}),
		scheduling:  service.NewSchedulingService(jobRepo, loader, queue, runs, metrics, defaults, nil, logr.Named("scheduling")),
		timetable:   service.NewTimetableService(entryRepo, courseRepo, db, relay, nil, logr.Named("timetable")),
		constraints: service.NewConstraintService(instructorRepo, subjectRepo, nil, logr),
		lockedSlots: service.NewLockedSlotService(lockRepo, courseRepo, nil, logr),
		metrics:     metrics,
		hub:         hub,
		db:          db,
		redis:       redisClient,
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		queue.Start(ctx)
		defer queue.Stop()
		if cfg.Scheduler.RecoverOnStart {
			if err := services.scheduling.RecoverJobs(ctx); err != nil {
				logr.Sugar().Errorw("failed to recover scheduling jobs", "error", err)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Realtime.Enabled {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown.
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func schedulingDefaults(cfg config.SchedulerConfig) (service.SchedulingDefaults, error) {
	days := make([]models.Day, 0, len(cfg.DefaultDays))
	for _, raw := range cfg.DefaultDays {
		day, err := models.ParseDay(raw)
		if err != nil {
			return service.SchedulingDefaults{}, fmt.Errorf("SCHEDULER_DEFAULT_DAYS: %w", err)
		}
		days = append(days, day)
	}
	return service.SchedulingDefaults{
		Timeout:       cfg.DefaultTimeout,
		MaxTimeout:    cfg.MaxTimeout,
		MaxIterations: cfg.MaxIterations,
		MaxBacktrack:  cfg.MaxBacktrack,
		Days:          days,
	}, nil
}
