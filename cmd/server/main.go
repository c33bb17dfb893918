package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketing-service/config"
	"ticketing-service/internal/api"
	"ticketing-service/internal/broker"
	"ticketing-service/internal/payment"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/retry"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
	"ticketing-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing service")

	tp, err := util.InitTracer("ticketing-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	readiness := map[string]api.Pinger{"postgres": db}

	var cache service.StatsCache
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, stats cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache = redisClient
		readiness["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var publisher service.BookingPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBooking))
	}

	authority := payment.NewAuthority(payment.Config{
		Provider:  cfg.Payment.Provider,
		SecretKey: cfg.Payment.SecretKey,
	})
	if _, ok := authority.(payment.Unconfigured); ok {
		logger.Warn("No payment provider configured, bookings will be rejected as unavailable")
	}

	paymentService := service.NewPaymentService(db, authority)
	reservationService := service.NewReservationService(db, authority, paymentService, publisher, cache)
	cancellationService := service.NewCancellationService(db, publisher, cache)
	statsService := service.NewStatsService(db, cache, cfg.Business.StatsCacheTTL)
	queryService := service.NewQueryService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var statsWorker *worker.StatsWorker
	if cfg.Kafka.Enabled && redisClient != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
		statsWorker = worker.NewStatsWorker(consumer, redisClient, statsService)
		go func() {
			if err := statsWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Stats worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	retries := cfg.Retry.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	retryPolicy := retry.Policy{
		Retries:    retries,
		Delay:      cfg.Retry.InitialDelay,
		Multiplier: cfg.Retry.BackoffFactor,
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(api.Services{
		Reservations:  reservationService,
		Cancellations: cancellationService,
		Payments:      paymentService,
		Stats:         statsService,
		Queries:       queryService,
	}, retryPolicy, cfg.Server.RequestTimeout, readiness)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if statsWorker != nil {
		if err := statsWorker.Stop(); err != nil {
			logger.Warn("Error stopping stats worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
