package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"expertresume/internal/config"
	"expertresume/internal/database"
	"expertresume/internal/hosting"
	"expertresume/internal/metrics"
	"expertresume/internal/payment"
	"expertresume/internal/quota"
	"expertresume/internal/storage"
	"expertresume/internal/tasks"
	"expertresume/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey)
	if err != nil {
		log.Fatalf("init payment gateway: %v", err)
	}

	logStore := hosting.NewLogStore(db)
	controller := hosting.NewController(db, gateway, logStore, logger, cfg.App.FrontendBaseURL)
	ledger := quota.NewLedger(db, quota.NewStaticPlanRegistry(), nil)

	snapshotHandler := worker.NewSnapshotTaskHandler(controller, storageClient, redisClient, logger, cfg.App.FrontendBaseURL)
	maintenanceHandler := worker.NewMaintenanceHandler(controller, ledger, logger)

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSnapshotPDF, snapshotHandler)
	mux.HandleFunc(tasks.TypeExpirySweep, maintenanceHandler.HandleExpirySweep)
	mux.HandleFunc(tasks.TypeQuotaReset, maintenanceHandler.HandleQuotaReset)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cfg.Worker.ExpirySweepSchedule, tasks.NewExpirySweepTask()); err != nil {
		log.Fatalf("register expiry sweep schedule: %v", err)
	}
	if _, err := scheduler.Register(cfg.Worker.QuotaResetSchedule, tasks.NewQuotaResetTask()); err != nil {
		log.Fatalf("register quota reset schedule: %v", err)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler stopped", slog.Any("error", err))
		}
	}()

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
