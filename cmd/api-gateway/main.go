package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/dto"
	"github.com/noah-isme/uni-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/uni-timetable-api/internal/middleware"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/service"
	"github.com/noah-isme/uni-timetable-api/pkg/cache"
	"github.com/noah-isme/uni-timetable-api/pkg/config"
	"github.com/noah-isme/uni-timetable-api/pkg/database"
	"github.com/noah-isme/uni-timetable-api/pkg/jobs"
	"github.com/noah-isme/uni-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/requestid"
)

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
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close()

	// Redis is optional: without it the schedule cache degrades to direct
	// reads and sequential refreshes hit the database every time.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, schedule cache disabled", "error", err)
		redisClient = nil
	}

	groupRepo := repository.NewGroupRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	changeRepo := repository.NewAvailabilityChangeRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	backupRepo := repository.NewBackupRepository(db)

	metricsSvc := service.NewMetricsService()
	genCfg := service.GenerationConfig{
		TimeBudget:      cfg.Solver.TimeBudget,
		Workers:         cfg.Solver.Workers,
		DefaultStrategy: cfg.Scheduler.DefaultStrategy,
		DefaultDays:     cfg.Scheduler.DefaultDays,
		DefaultActor:    cfg.Scheduler.DefaultActor,
	}

	var (
		generationSvc *service.GenerationService
		repairSvc     *service.RepairService
	)
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cached := repository.NewCachedScheduleRepository(scheduleRepo, cacheRepo, cfg.Scheduler.ScheduleCache, logr)
		snapshotSvc := service.NewSnapshotService(groupRepo, subjectRepo, teacherRepo, availabilityRepo, slotRepo, cached, logr)
		generationSvc = service.NewGenerationService(snapshotSvc, scheduleRepo, cached, db, metricsSvc, genCfg, logr)
		repairSvc = service.NewRepairService(changeRepo, scheduleRepo, backupRepo, groupRepo, generationSvc, cached, db, cfg.Scheduler.DefaultActor, logr)
	} else {
		snapshotSvc := service.NewSnapshotService(groupRepo, subjectRepo, teacherRepo, availabilityRepo, slotRepo, scheduleRepo, logr)
		generationSvc = service.NewGenerationService(snapshotSvc, scheduleRepo, nil, db, metricsSvc, genCfg, logr)
		repairSvc = service.NewRepairService(changeRepo, scheduleRepo, backupRepo, groupRepo, generationSvc, nil, db, cfg.Scheduler.DefaultActor, logr)
	}

	// one worker so repair passes never interleave
	repairQueue := jobs.NewQueue("schedule-repair", repairJobHandler(repairSvc, logr), jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Scheduler.RepairQueueSize,
		Logger:     logr,
	})
	repairQueue.Start(context.Background())
	defer repairQueue.Stop()

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, changeRepo, teacherRepo, logr)

	scheduleHandler := handler.NewScheduleHandler(generationSvc, repairSvc, scheduleRepo, repairQueue, logr)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/schedules/generate", scheduleHandler.Generate)
	api.POST("/schedules/repair", scheduleHandler.Repair)
	api.POST("/schedules/restore", scheduleHandler.Restore)
	api.GET("/schedules", scheduleHandler.List)
	api.PUT("/teachers/:id/availability", availabilityHandler.Update)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func repairJobHandler(svc *service.RepairService, logr *zap.Logger) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		req, ok := job.Payload.(dto.RepairRequest)
		if !ok {
			return fmt.Errorf("unexpected repair payload %T", job.Payload)
		}
		req.Async = false
		result, err := svc.Repair(ctx, req)
		if err != nil {
			return err
		}
		logr.Info("async repair finished",
			zap.String("job_id", job.ID),
			zap.String("teacher_id", req.TeacherID),
			zap.String("message", result.Message),
		)
		return nil
	}
}
