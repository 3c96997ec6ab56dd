package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/infrastructure/config"
	"github.com/campreserve/backend/internal/infrastructure/event"
	"github.com/campreserve/backend/internal/infrastructure/logger"
	"github.com/campreserve/backend/internal/infrastructure/persistence"
	"github.com/campreserve/backend/internal/infrastructure/scheduler"
	"github.com/campreserve/backend/internal/interfaces/http/handler"
	"github.com/campreserve/backend/internal/interfaces/http/middleware"
	"github.com/campreserve/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting metering service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database connection with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	meterRepo := persistence.NewMeterRepository(db.DB)
	readRepo := persistence.NewMeterReadRepository(db.DB)
	ratePlanRepo := persistence.NewRatePlanRepository(db.DB)
	billingRepo := persistence.NewBillingEventRepository(db.DB)
	outboxRepo := persistence.NewOutboxRepository(db.DB)
	siteDirectory := persistence.NewSiteDirectory(db.DB)

	// Application services
	resolver := appmetering.NewConfigResolver(siteDirectory)
	ratePlanService := appmetering.NewRatePlanService(ratePlanRepo, log)
	meterService := appmetering.NewMeterService(meterRepo, siteDirectory, resolver, db, log)
	billingService := appmetering.NewBillingService(
		meterRepo, readRepo, billingRepo, ratePlanService, resolver, outboxRepo, db, log)
	readingService := appmetering.NewReadingService(meterRepo, readRepo, billingService, resolver, db, log)
	seedingService := appmetering.NewSeedingService(meterService, siteDirectory, cfg.Seeding.Workers, log)

	// Outbox dispatcher pushes invoice notifications to the broker. The
	// service stays up without a broker when the dispatcher is disabled;
	// entries just accumulate as PENDING.
	if cfg.Event.DispatcherEnabled {
		conn, err := event.NewConnection(cfg.AMQP.URL, log)
		if err != nil {
			log.Fatal("Failed to connect to message broker", zap.Error(err))
		}
		defer func() {
			if err := conn.Close(); err != nil {
				log.Error("Error closing broker connection", zap.Error(err))
			}
		}()

		publisher, err := event.NewAMQPPublisher(conn, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Fatal("Failed to create publisher", zap.Error(err))
		}

		dispatcher := event.NewDispatcher(outboxRepo, publisher, event.DispatcherConfig{
			BatchSize:    cfg.Event.BatchSize,
			PollInterval: cfg.Event.PollInterval,
		}, log)
		if err := dispatcher.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox dispatcher", zap.Error(err))
		}
		defer func() {
			if err := dispatcher.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox dispatcher", zap.Error(err))
			}
		}()
		log.Info("Outbox dispatcher started",
			zap.Int("batch_size", cfg.Event.BatchSize),
			zap.Duration("poll_interval", cfg.Event.PollInterval),
		)
	}

	// Billing scheduler sweeps cycle and annual meters. Each pass relies on
	// BillMeter idempotency, so a meter whose latest read is already billed
	// is a no-op.
	if cfg.Scheduler.Enabled {
		billingScheduler := scheduler.NewBillingScheduler(meterRepo, billingService, scheduler.BillingSchedulerConfig{
			TickInterval:  cfg.Scheduler.TickInterval,
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		}, log)
		if err := billingScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start billing scheduler", zap.Error(err))
		}
		defer func() {
			if err := billingScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping billing scheduler", zap.Error(err))
			}
		}()
		log.Info("Billing scheduler started",
			zap.Duration("tick_interval", cfg.Scheduler.TickInterval),
			zap.Int("max_concurrent", cfg.Scheduler.MaxConcurrent),
		)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.RegisterRoot(handler.NewSystemHandler(db, version))
	r.Register(handler.NewMeterHandler(meterService)).
		Register(handler.NewReadingHandler(readingService)).
		Register(handler.NewBillingHandler(billingService)).
		Register(handler.NewRatePlanHandler(ratePlanService)).
		Register(handler.NewSeedingHandler(seedingService))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
