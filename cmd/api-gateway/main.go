package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-portal-api/api/swagger"
	"github.com/noah-isme/campus-portal-api/internal/handler"
	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	"github.com/noah-isme/campus-portal-api/internal/service"
	"github.com/noah-isme/campus-portal-api/pkg/cache"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	"github.com/noah-isme/campus-portal-api/pkg/database"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
	"github.com/noah-isme/campus-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-portal-api/pkg/storage"
)

// @title Campus Portal API
// @version 1.0.0
// @description Learning portal core: enrollments, assignments, submissions, grades
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Stats.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close()
		}
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-portal-api",
		SingleSession:      true,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, enrollmentRepo, gradeRepo, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, assignmentRepo, logr)

	var statsCacheTTL time.Duration
	if cfg.Stats.CacheEnabled {
		statsCacheTTL = cfg.Stats.CacheTTL
	}
	statsSvc := service.NewStatsService(statsRepo, cacheRepo, statsCacheTTL, logr)

	// Writes that move the aggregates drop the cached projections.
	authSvc.BindStatsInvalidator(statsSvc)
	userSvc.BindStatsInvalidator(statsSvc)
	enrollmentSvc.BindStatsInvalidator(statsSvc)
	submissionSvc.BindStatsInvalidator(statsSvc)

	announcementSvc := service.NewAnnouncementService(announcementRepo, validate, logr)

	reportStore, err := storage.NewBlobStore(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportSvc := service.NewReportService(reportRepo, courseRepo, gradeRepo, assignmentRepo, reportStore, reportSigner, logr)

	uploadStore, err := storage.NewBlobStore(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	uploadSvc := service.NewUploadService(uploadStore, cfg.Uploads.MaxFileSizeBytes, logr)

	reportQueue := jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.BindQueue(reportQueue)

	metricsSvc := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed token is the capability; the download route carries no session.
	api.GET("/reports/download", reportHandler.Download)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	users := protected.Group("/users")
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionUserCreate, "users"), userHandler.Create)
		users.PUT("/:id", userHandler.Update)
		users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionRoleChange, "users"), userHandler.ChangeRole)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionUserDisable, "users"), userHandler.Disable)
		users.POST("/:id/activate", middleware.RequireRoles(models.RoleAdmin), userHandler.Activate)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)
		courses.PUT("/:id", courseHandler.Update)
		courses.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), courseHandler.Delete)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", enrollmentHandler.Request)
		enrollments.PUT("/:id/decision", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionEnrollmentDecide, "enrollments"), enrollmentHandler.Decide)
		enrollments.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionEnrollmentRemove, "enrollments"), enrollmentHandler.Remove)
	}

	assignments := protected.Group("/assignments")
	{
		assignments.GET("", assignmentHandler.List)
		assignments.GET("/:id", assignmentHandler.Get)
		assignments.POST("", assignmentHandler.Create)
		assignments.PUT("/:id", assignmentHandler.Update)
		assignments.PUT("/:id/due-date", assignmentHandler.UpdateDueDate)
		assignments.POST("/:id/publish",
			middleware.Audit(userRepo, models.AuditActionAssignmentPub, "assignments"), assignmentHandler.Publish)
		assignments.DELETE("/:id", assignmentHandler.Delete)
		assignments.GET("/:id/grades", gradeHandler.ListByAssignment)
	}

	submissions := protected.Group("/submissions")
	{
		submissions.GET("", submissionHandler.List)
		submissions.GET("/:id", submissionHandler.Get)
		submissions.POST("", submissionHandler.Submit)
		submissions.PUT("/:id/content", submissionHandler.Replace)
		submissions.POST("/:id/grade",
			middleware.Audit(userRepo, models.AuditActionGradeRecord, "submissions"), submissionHandler.Grade)
		submissions.POST("/:id/return", submissionHandler.Return)
	}

	protected.POST("/uploads/submissions", uploadHandler.SubmissionContent)

	protected.GET("/students/:studentId/grades", gradeHandler.ListByStudent)

	stats := protected.Group("/stats")
	{
		stats.GET("/students/:studentId/grades", statsHandler.StudentGradeStats)
		stats.GET("/enrollments", middleware.RequireRoles(models.RoleAdmin), statsHandler.EnrollmentStatistics)
		stats.GET("/users", middleware.RequireRoles(models.RoleAdmin), statsHandler.UserStatistics)
	}

	announcements := protected.Group("/announcements")
	{
		announcements.GET("", announcementHandler.List)
		announcements.POST("", announcementHandler.Create)
		announcements.PUT("/:id", announcementHandler.Update)
		announcements.PUT("/:id/pin", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionPinToggle, "announcements"), announcementHandler.SetPin)
		announcements.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), announcementHandler.Delete)
	}

	reports := protected.Group("/reports")
	{
		reports.GET("", reportHandler.ListMine)
		reports.GET("/:id", reportHandler.Status)
		reports.POST("", reportHandler.Request)
	}

	protected.GET("/system/metrics", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
