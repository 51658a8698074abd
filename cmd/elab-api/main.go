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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/elab-api/api/swagger"
	"github.com/noah-isme/elab-api/internal/handler"
	"github.com/noah-isme/elab-api/internal/middleware"
	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/internal/repository"
	"github.com/noah-isme/elab-api/internal/service"
	"github.com/noah-isme/elab-api/pkg/cache"
	"github.com/noah-isme/elab-api/pkg/config"
	"github.com/noah-isme/elab-api/pkg/database"
	"github.com/noah-isme/elab-api/pkg/export"
	"github.com/noah-isme/elab-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/elab-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/elab-api/pkg/middleware/requestid"
)

// @title eLab API
// @version 1.0.0
// @description Lab reservation and equipment lending engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	slots     *handler.SlotHandler
	schedules *handler.ScheduleTypeHandler
	bookings  *handler.LabBookingHandler
	inventory *handler.InventoryHandler
	lending   *handler.LendingHandler
	events    *handler.LendingEventHandler
	metrics   *handler.MetricsHandler
}

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

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)

	recorder := service.NewEventRecorder(repository.NewLendingEventRepository(db), service.EventRecorderConfig{
		Workers:    cfg.Lending.EventWorkers,
		BufferSize: cfg.Lending.EventBuffer,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}, logr)
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorder.Start(recorderCtx)

	h := buildHandlers(cfg, db, cacheSvc, metricsSvc, recorder, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})
	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))
	registerRoutes(api, h)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	recorder.Stop()
	stopRecorder()
}

func buildHandlers(cfg *config.Config, db *sqlx.DB, cacheSvc *service.CacheService, metricsSvc *service.MetricsService, recorder *service.EventRecorder, logr *zap.Logger) handlers {
	validate := validator.New()
	location := cfg.Lending.Location()

	slotRepo := repository.NewSlotRepository(db)
	scheduleRepo := repository.NewScheduleTypeRepository(db)
	bookingRepo := repository.NewLabBookingRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	accessoryRepo := repository.NewAccessoryRepository(db)
	templateRepo := repository.NewKitTemplateRepository(db)
	kitRepo := repository.NewKitRepository(db)
	kitAccessoryRepo := repository.NewKitAccessoryRepository(db)

	runner := service.NewTxRunner(db, repository.NewLockRepository(), cfg.Lending.TransientRetries, metricsSvc, logr)

	slotSvc := service.NewSlotService(slotRepo, cacheSvc, cfg.Catalog.CacheTTL, validate, logr)
	scheduleSvc := service.NewScheduleTypeService(service.ScheduleTypeServiceDeps{
		Repo:      scheduleRepo,
		Slots:     slotRepo,
		Runner:    runner,
		Events:    recorder,
		Cache:     cacheSvc,
		CacheTTL:  cfg.Catalog.CacheTTL,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})
	checker := service.NewConflictChecker(scheduleRepo, bookingRepo, metricsSvc, logr)
	bookingSvc := service.NewLabBookingService(service.LabBookingServiceDeps{
		Repo:      bookingRepo,
		Slots:     slotRepo,
		Checker:   checker,
		Runner:    runner,
		Events:    recorder,
		Metrics:   metricsSvc,
		Location:  location,
		Validator: validate,
		Logger:    logr,
	})
	inventorySvc := service.NewInventoryService(service.InventoryServiceDeps{
		Equipment:      equipmentRepo,
		Accessories:    accessoryRepo,
		Templates:      templateRepo,
		Kits:           kitRepo,
		KitAccessories: kitAccessoryRepo,
		Runner:         runner,
		Events:         recorder,
		Metrics:        metricsSvc,
		Validator:      validate,
		Logger:         logr,
	})
	tracker := service.NewDegradationTracker(service.DegradationTrackerDeps{
		Kits:           kitRepo,
		KitAccessories: kitAccessoryRepo,
		Runner:         runner,
		Events:         recorder,
		Metrics:        metricsSvc,
		Threshold:      cfg.Lending.AccessoryInvalidThreshold,
		Validator:      validate,
		Logger:         logr,
	})
	exporter := service.NewHistoryExportService(cfg.Lending.HistoryExportMaxRows, logr, export.NewCSVExporter(export.WithByteOrderMark()), export.NewPDFExporter())
	lendingSvc := service.NewLendingService(service.LendingServiceDeps{
		EquipmentBorrows: repository.NewBorrowRepository(db, models.ResourceEquipment),
		KitBorrows:       repository.NewBorrowRepository(db, models.ResourceKit),
		Equipment:        equipmentRepo,
		Kits:             kitRepo,
		Tracker:          tracker,
		Runner:           runner,
		Exporter:         exporter,
		Events:           recorder,
		Metrics:          metricsSvc,
		Validator:        validate,
		Logger:           logr,
		Location:         location,
	})

	return handlers{
		slots:     handler.NewSlotHandler(slotSvc),
		schedules: handler.NewScheduleTypeHandler(scheduleSvc),
		bookings:  handler.NewLabBookingHandler(bookingSvc),
		inventory: handler.NewInventoryHandler(inventorySvc, tracker),
		lending:   handler.NewLendingHandler(lendingSvc),
		events:    handler.NewLendingEventHandler(recorder),
		metrics:   handler.NewMetricsHandler(metricsSvc, db),
	}
}

func registerRoutes(api *gin.RouterGroup, h handlers) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	deciders := middleware.RequireRoles(models.RoleAdmin, models.RoleHeadOfDepartment)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleHeadOfDepartment, models.RoleLecturer)
	lenders := middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer)

	slots := api.Group("/slots")
	slots.GET("", h.slots.List)
	slots.GET("/:id", h.slots.Get)
	slots.POST("", admin, h.slots.Create)
	slots.PUT("/:id", admin, h.slots.Update)
	slots.PATCH("/:id/status", admin, h.slots.UpdateStatus)

	schedules := api.Group("/schedule-types")
	schedules.GET("", h.schedules.List)
	schedules.GET("/grid", h.schedules.Grid)
	schedules.GET("/:id", h.schedules.Get)
	schedules.POST("", deciders, h.schedules.Assign)
	schedules.PATCH("/:id/status", deciders, h.schedules.UpdateStatus)

	bookings := api.Group("/bookings")
	bookings.GET("", h.bookings.List)
	bookings.GET("/today", h.bookings.Today)
	bookings.GET("/:id", h.bookings.Get)
	bookings.POST("", lenders, h.bookings.Create)
	bookings.PATCH("/:id/status", deciders, h.bookings.UpdateStatus)

	equipment := api.Group("/equipment")
	equipment.GET("", h.inventory.SearchEquipment)
	equipment.GET("/:id", h.inventory.GetEquipment)
	equipment.POST("", admin, h.inventory.CreateEquipment)
	equipment.PATCH("/:id/status", admin, h.inventory.UpdateEquipmentStatus)

	accessories := api.Group("/accessories")
	accessories.GET("", h.inventory.SearchAccessories)
	accessories.GET("/:id", h.inventory.GetAccessory)
	accessories.POST("", admin, h.inventory.CreateAccessory)
	accessories.PATCH("/:id/status", admin, h.inventory.UpdateAccessoryStatus)

	templates := api.Group("/kit-templates")
	templates.GET("", h.inventory.SearchKitTemplates)
	templates.GET("/:id", h.inventory.GetKitTemplate)
	templates.POST("", admin, h.inventory.CreateKitTemplate)
	templates.PATCH("/:id/status", admin, h.inventory.UpdateKitTemplateStatus)
	templates.PUT("/:id/accessories", admin, h.inventory.SetRecipe)

	kits := api.Group("/kits")
	kits.GET("", h.inventory.SearchKits)
	kits.GET("/:id", h.inventory.GetKit)
	kits.POST("", admin, h.inventory.CreateKit)

	kitAccessories := api.Group("/kit-accessories")
	kitAccessories.GET("", h.inventory.ListKitAccessories)
	kitAccessories.POST("/reconcile", lenders, h.inventory.Reconcile)

	teamEquipment := api.Group("/team-equipment", staff)
	teamEquipment.GET("", h.lending.EquipmentHistory)
	teamEquipment.GET("/export", h.lending.ExportEquipmentHistory)
	teamEquipment.POST("/checkout", lenders, h.lending.CheckoutEquipment)
	teamEquipment.POST("/return", lenders, h.lending.ReturnEquipment)

	teamKit := api.Group("/team-kit", staff)
	teamKit.GET("", h.lending.KitHistory)
	teamKit.GET("/export", h.lending.ExportKitHistory)
	teamKit.POST("/checkout", lenders, h.lending.CheckoutKit)
	teamKit.POST("/return", lenders, h.lending.ReturnKit)

	api.GET("/lending-events", deciders, h.events.List)
}
