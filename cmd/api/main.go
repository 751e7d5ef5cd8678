package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/coachdesk/academy-api/api/swagger"
	"github.com/coachdesk/academy-api/internal/handler"
	"github.com/coachdesk/academy-api/internal/middleware"
	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/repository"
	"github.com/coachdesk/academy-api/internal/scheduler"
	"github.com/coachdesk/academy-api/internal/service"
	"github.com/coachdesk/academy-api/pkg/cache"
	"github.com/coachdesk/academy-api/pkg/config"
	"github.com/coachdesk/academy-api/pkg/database"
	"github.com/coachdesk/academy-api/pkg/logger"
	"github.com/coachdesk/academy-api/pkg/mailer"
	corsmiddleware "github.com/coachdesk/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/coachdesk/academy-api/pkg/middleware/requestid"
	"github.com/coachdesk/academy-api/pkg/storage"
)

// @title CoachDesk Academy API
// @version 1.0.0
// @description Coaching academy backend: attendance ledger, coach payroll settlement and payment intake
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// repositories
	userRepo := repository.NewUserRepository(db)
	coachRepo := repository.NewCoachRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	otpRepo := repository.NewOTPRepository(redisClient)

	// services
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Payroll.ReportCacheTTL, logr, true)
	coachSvc := service.NewCoachService(coachRepo, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, coachRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, cacheSvc, validate, logr)
	settlementSvc := service.NewSettlementService(coachRepo, attendanceRepo, settlementRepo, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(settlementSvc, coachSvc, logr)
	authSvc := service.NewAuthService(userRepo, coachSvc, studentSvc, otpRepo,
		mailer.FromConfig(cfg.Mail, logr), cfg.JWT, cfg.OTP, validate, logr)

	var paymentSvc *service.PaymentService
	if cfg.Payments.Enabled {
		store, err := storage.NewLocalStorage(cfg.Payments.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init payment storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Payments.SignedURLSecret, cfg.Payments.SignedURLTTL)
		paymentSvc = service.NewPaymentService(paymentRepo, store, signer, cfg.Payments, validate, logr)
	}

	// handlers
	authHandler := handler.NewAuthHandler(authSvc)
	coachHandler := handler.NewCoachHandler(coachSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, coachSvc)
	salaryHandler := handler.NewSalaryHandler(settlementSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

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
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	coaches := protected.Group("/coaches")
	{
		coaches.GET("", coachHandler.List)
		coaches.GET("/count", coachHandler.Count)
		coaches.GET("/:id", coachHandler.Get)
		coaches.GET("/:id/outstanding", coachHandler.Outstanding)
		coaches.POST("", middleware.RequireRoles(models.RoleAdmin), coachHandler.Create)
		coaches.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), coachHandler.Update)
		coaches.PUT("/:id/hourly-rate", middleware.RequireRoles(models.RoleAdmin), coachHandler.SetHourlyRate)
		coaches.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), coachHandler.Deactivate)
	}

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/count", studentHandler.Count)
		students.GET("/:id", studentHandler.Get)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), studentHandler.Create)
		students.PUT("/:id/coach", middleware.RequireRoles(models.RoleAdmin), studentHandler.AssignCoach)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), studentHandler.Deactivate)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleCoach), attendanceHandler.Mark)
		attendance.GET("/students/:studentId", attendanceHandler.StudentHistory)
	}

	salary := protected.Group("/salary")
	{
		salary.GET("/:coachId/report", salaryHandler.Report)
		salary.POST("/:coachId/pay", middleware.RequireRoles(models.RoleAdmin), salaryHandler.Pay)
		salary.POST("/pay-all", middleware.RequireRoles(models.RoleAdmin), salaryHandler.PayAll)
		salary.POST("/accrue", middleware.RequireRoles(models.RoleAdmin), salaryHandler.AccrueMonthly)
		salary.GET("/pending-total", middleware.RequireRoles(models.RoleAdmin), salaryHandler.PendingTotal)
		salary.GET("/settlements", middleware.RequireRoles(models.RoleAdmin), salaryHandler.ListSettlements)
		salary.GET("/settlements/export", middleware.RequireRoles(models.RoleAdmin), salaryHandler.ExportSettlements)
	}

	if paymentSvc != nil {
		paymentHandler := handler.NewPaymentHandler(paymentSvc)
		payments := api.Group("/payments")
		{
			payments.POST("", paymentHandler.Initialize)
			payments.GET("/receipts/download", paymentHandler.DownloadReceipt)
			payments.GET("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), paymentHandler.List)
			payments.GET("/:id", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), paymentHandler.Get)
			payments.GET("/:id/receipt-link", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), paymentHandler.ReceiptLink)
			payments.POST("/confirm", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), paymentHandler.Confirm)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var payroll *scheduler.PayrollScheduler
	if cfg.Payroll.SchedulerEnabled {
		payroll = scheduler.NewPayrollScheduler(settlementSvc, coachSvc, cfg.Payroll, logr)
		payroll.Start(ctx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	if payroll != nil {
		payroll.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped", zap.Int("port", cfg.Port))
}
