package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canditrack/internal/api"
	"canditrack/internal/app/driver"
	"canditrack/internal/app/service"
	"canditrack/internal/app/worker"
	"canditrack/internal/common/security"
	"canditrack/internal/domain/repository"
	"canditrack/internal/platform/config"
	"canditrack/internal/platform/database"
	"canditrack/internal/platform/logging"
	"canditrack/internal/platform/notify"
	"canditrack/internal/platform/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Configuration
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "db_driver", cfg.DBDriver, "notify", cfg.NotifyBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize JWT
	tokens := security.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp)

	// 3. Initialize Database
	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// 4. Initialize notifications and object storage
	bus := openNotifier(ctx, cfg, logger)
	if bus != nil {
		defer bus.Close()
	}

	store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		return err
	}

	// 5. Initialize Repositories
	userRepo := repository.NewUserRepository(db)
	queueRepo := repository.NewUploadQueueRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// 6. Initialize Services
	var publisher notify.Publisher
	var subscriber notify.Subscriber
	if bus != nil {
		publisher, subscriber = bus, bus
	}
	authService := service.NewAuthService(userRepo, settingsRepo, tokens, logger)
	settingsService := service.NewSettingsService(settingsRepo, cfg.UploadWebhookURL, logger)
	queueService := service.NewUploadQueueService(queueRepo, publisher, logger)
	uploadService := service.NewUploadService(store, queueService, logger)
	exportService := service.NewExportService(queueRepo, logger)

	// 7. Initialize the queue processor and, optionally, an in-process driver
	uploadWorker := worker.NewUploadWorker(queueRepo, store, worker.NewWebhookClient(cfg.WebhookTimeout), settingsService, publisher, logger)
	processor := worker.NewQueueProcessor(queueRepo, uploadWorker, publisher, logger)

	driverDone := make(chan struct{})
	if cfg.QueueInProcessDriver {
		d := driver.New(driver.NewProcessorTrigger(processor),
			driver.WithInterval(cfg.QueuePollInterval),
			driver.WithConcurrency(cfg.QueueConcurrency),
			driver.WithLogger(logger),
		)
		go func() {
			defer close(driverDone)
			d.Run(ctx)
		}()
		logger.Info("in-process queue driver started", "interval", cfg.QueuePollInterval, "concurrency", cfg.QueueConcurrency)
	} else {
		close(driverDone)
	}
	if cfg.QueueAPIKey == "" {
		logger.Warn("QUEUE_PROCESSOR_API_KEY is empty; the queue gateway will reject every call")
	}

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(api.Deps{
		Tokens:          tokens,
		AuthService:     authService,
		QueueService:    queueService,
		UploadService:   uploadService,
		SettingsService: settingsService,
		ExportService:   exportService,
		Processor:       processor,
		Events:          subscriber,
		QueueAPIKey:     cfg.QueueAPIKey,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		Logger:          logger,
	})

	// No WriteTimeout: gateway calls wait on the webhook and event streams stay open.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 9. Graceful Shutdown
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-driverDone

	logger.Info("server and driver stopped gracefully")
	return nil
}

// openNotifier returns nil when notifications are disabled or the broker is unreachable.
func openNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) notify.Bus {
	switch cfg.NotifyBackend {
	case config.NotifyNone, "":
		return nil
	case config.NotifyAMQP:
		bus, err := notify.NewAMQPBus(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, live queue updates disabled", "err", err)
			return nil
		}
		return bus
	case config.NotifyRedis:
		rdb, err := notify.ConnectRedis(ctx, notify.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("redis unavailable, live queue updates disabled", "err", err)
			return nil
		}
		return notify.NewRedisBus(rdb, cfg.NotifyChannel, logger)
	default:
		logger.Warn("unknown NOTIFY_BACKEND, live queue updates disabled", "backend", cfg.NotifyBackend)
		return nil
	}
}
