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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/presensia/attendance-api/api/swagger"
	"github.com/presensia/attendance-api/internal/handler"
	"github.com/presensia/attendance-api/internal/middleware"
	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/internal/repository"
	"github.com/presensia/attendance-api/internal/service"
	"github.com/presensia/attendance-api/pkg/cache"
	"github.com/presensia/attendance-api/pkg/config"
	"github.com/presensia/attendance-api/pkg/database"
	"github.com/presensia/attendance-api/pkg/export"
	"github.com/presensia/attendance-api/pkg/jobs"
	"github.com/presensia/attendance-api/pkg/logger"
	corsmiddleware "github.com/presensia/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/presensia/attendance-api/pkg/middleware/requestid"
	"github.com/presensia/attendance-api/pkg/storage"
)

// @title Presensia Attendance API
// @version 1.0.0
// @description QR code and face verification based attendance backend
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	faceRepo := repository.NewFaceRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "attendance-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, cacheRepo, userRepo, validate, logr, service.SessionConfig{
		TokenTTL:       cfg.Sessions.TokenTTL,
		SweepInterval:  cfg.Sessions.SweepInterval,
		DefaultRadiusM: cfg.Verification.GeofenceRadiusM,
	})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, faceRepo, sessionSvc, cacheRepo, userRepo, metricsSvc, validate, logr, service.VerificationConfig{
		GeofenceRadiusM:    cfg.Verification.GeofenceRadiusM,
		FaceMatchThreshold: cfg.Verification.FaceMatchThreshold,
		EmbeddingDim:       cfg.Verification.EmbeddingDim,
		SummaryCacheTTL:    cfg.Verification.SummaryCacheTTL,
	})
	faceSvc := service.NewFaceService(faceRepo, studentRepo, userRepo, validate, logr, service.VerificationConfig{
		EmbeddingDim: cfg.Verification.EmbeddingDim,
	})
	leaveSvc := service.NewLeaveService(leaveRepo, userRepo, validate, logr)

	exportSvc := service.NewExportService(attendanceRepo, sessionRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc := service.NewReportService(reportRepo, sessionRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})

	reportQueue.Start(ctx)
	defer reportQueue.Stop()
	reportSvc.RecoverPendingJobs(ctx)
	go reportSvc.StartCleanup(ctx)
	go sessionSvc.StartSweeper(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, sessionSvc, studentSvc)
	faceHandler := handler.NewFaceHandler(faceSvc, studentSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc, studentSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	authed := auth.Group("", middleware.JWT(authSvc))
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	users := api.Group("/users", middleware.JWT(authSvc))
	users.GET("", middleware.RBAC("ADMIN"), userHandler.List)
	users.POST("", middleware.RBAC("ADMIN"), userHandler.Create)
	users.GET("/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Get)
	users.PATCH("/:id", middleware.RBAC("ADMIN"), userHandler.Update)
	users.DELETE("/:id", middleware.RBAC("ADMIN"), userHandler.Delete)

	students := api.Group("/students", middleware.JWT(authSvc))
	students.GET("", middleware.RBAC("ADMIN", "TEACHER"), studentHandler.List)
	students.POST("", middleware.RBAC("ADMIN"), studentHandler.Create)
	students.GET("/me", middleware.RBAC("STUDENT"), studentHandler.Me)
	students.GET("/:id", middleware.RBAC("ADMIN", "TEACHER"), studentHandler.Get)
	students.PATCH("/:id", middleware.RBAC("ADMIN"), studentHandler.Update)
	students.PUT("/:id/face", middleware.RBAC("ADMIN", "STUDENT"), faceHandler.Enroll)
	students.GET("/:id/face", middleware.RBAC("ADMIN", "TEACHER", "STUDENT"), faceHandler.Status)
	students.DELETE("/:id/face", middleware.RBAC("ADMIN"), faceHandler.Remove)
	students.GET("/:id/attendance/history", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.StudentHistory)
	students.GET("/:id/attendance/summary", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.StudentSummary)

	sessions := api.Group("/sessions", middleware.JWT(authSvc))
	sessions.POST("", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.Create)
	sessions.GET("", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.List)
	sessions.GET("/:id", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.Get)
	sessions.PATCH("/:id", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.Update)
	sessions.POST("/:id/rotate-token", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.RotateToken)
	sessions.POST("/:id/end", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.End)
	sessions.GET("/:id/qrcode", middleware.RBAC("ADMIN", "TEACHER"), sessionHandler.QRCode)
	sessions.GET("/:id/report", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.SessionReport)
	sessions.POST("/:id/attendance", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.ManualMark)
	sessions.POST("/:id/attendance/bulk", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.BulkMark)

	attendance := api.Group("/attendance", middleware.JWT(authSvc))
	attendance.POST("/checkin", middleware.RBAC("STUDENT"), attendanceHandler.CheckIn)
	attendance.GET("", middleware.RBAC("ADMIN", "TEACHER"), attendanceHandler.List)
	attendance.GET("/me/history", middleware.RBAC("STUDENT"), attendanceHandler.MyHistory)
	attendance.GET("/me/summary", middleware.RBAC("STUDENT"), attendanceHandler.MySummary)

	leaves := api.Group("/leaves", middleware.JWT(authSvc))
	leaves.POST("", middleware.RBAC("STUDENT"), leaveHandler.Create)
	leaves.GET("", leaveHandler.List)
	leaves.GET("/:id", leaveHandler.Get)
	leaves.POST("/:id/approve", middleware.RBAC("ADMIN", "TEACHER"), leaveHandler.Approve)
	leaves.POST("/:id/reject", middleware.RBAC("ADMIN", "TEACHER"), leaveHandler.Reject)

	reports := api.Group("/reports")
	reports.POST("", middleware.JWT(authSvc), middleware.RBAC("ADMIN", "TEACHER"), reportHandler.Create)
	reports.GET("/:id", middleware.JWT(authSvc), middleware.RBAC("ADMIN", "TEACHER"), reportHandler.Status)
	reports.GET("/download/:token", middleware.Audit(userRepo, models.AuditActionReportDownload, "report"), reportHandler.Download)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
