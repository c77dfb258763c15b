package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"partstore-core/internal/auth"
	"partstore-core/internal/client"
	"partstore-core/internal/config"
	"partstore-core/internal/logger"
	"partstore-core/internal/observability"
	"partstore-core/internal/repository"
	"partstore-core/internal/server"
	"partstore-core/internal/service"
	"partstore-core/internal/webhook"
	"partstore-core/internal/worker"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("partstore-core stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Otel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	db, err := client.InitDBClient(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	var idempotencyRepo repository.IdempotencyRepository
	if cfg.Redis.Addr != "" {
		rdb, err := client.InitRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		idempotencyRepo = repository.NewIdempotencyRepository(rdb)
	} else {
		log.Info("REDIS_ADDR not set, checkout idempotency keys disabled")
	}

	mpClient := client.NewMercadoPagoClient(&cfg.MercadoPago)
	if cfg.MercadoPago.AccessToken == "" {
		log.Warn("MERCADOPAGO_ACCESS_TOKEN not set, payment calls will fail")
	}

	verifier := webhook.NewVerifier(cfg.MercadoPago.WebhookSecret)
	if !verifier.Enabled() {
		log.Warn("MERCADOPAGO_WEBHOOK_SECRET not set, webhook signatures are NOT verified")
	}

	partRepo := repository.NewPartRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	returnRepo := repository.NewReturnRepository(db)
	alertRepo := repository.NewFulfillmentAlertRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)

	inventoryService := service.NewInventoryService(db, partRepo, movementRepo, orderRepo, saleRepo, returnRepo, outboxRepo, log)
	orderService := service.NewOrderService(db, partRepo, orderRepo, paymentRepo, outboxRepo, idempotencyRepo, log)
	fulfillmentService := service.NewFulfillmentService(db, inventoryService, orderRepo, saleRepo, outboxRepo, log)
	paymentService := service.NewPaymentService(
		db, mpClient, verifier, fulfillmentService,
		partRepo, orderRepo, paymentRepo, alertRepo, outboxRepo, deliveryRepo,
		service.PaymentOptions{
			BaseURL:         cfg.BaseURL,
			FrontendURL:     cfg.FrontendURL,
			Currency:        cfg.MercadoPago.Currency,
			ProviderTimeout: cfg.MercadoPago.Timeout,
		},
		log,
	)

	// Background workers stop with workerCtx; the server drains first.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workerCtx)
		}()
	}

	startWorker(worker.NewExpirySweeper(orderService, cfg.Workers.OrderExpiry, cfg.Workers.SweepInterval, log).Run)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := client.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		startWorker(worker.NewOutboxRelay(outboxRepo, publisher, cfg.Workers.OutboxInterval, cfg.Workers.OutboxBatchSize, log).Run)
	} else {
		log.Info("KAFKA_BROKERS not set, outbox events stay in the database")
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	srv := server.NewServer(orderService, paymentService, inventoryService, jwtService, log)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", serverAddr))
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Signal received, starting graceful shutdown...")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	stopWorkers()
	wg.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("shutdown complete")
	return runErr
}
