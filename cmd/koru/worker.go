package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/infrastructure/rabbitmq"
	"koru/internal/interfaces/scheduler"
	"koru/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run import workers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx)
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Pool.Start()

	var refresh *scheduler.RefreshScheduler
	if len(cfg.Worker.SyncTimes) > 0 {
		refresh, err = scheduler.NewRefreshScheduler(cfg.Worker.SyncTimes, deps.Connections, deps.Coordinator, logger)
		if err != nil {
			return err
		}
		refresh.Start()
	}

	consumerDone := make(chan error, 1)
	if !deps.LocalQueue() {
		consumer := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.Worker.WorkerCount,
		}, func(task ingest.ImportAccountTask) error {
			return deps.Pool.Submit(deps.Runner.NewJob(task))
		}, logger)
		go func() { consumerDone <- consumer.Run(ctx) }()
	} else {
		close(consumerDone)
	}

	logger.Info("worker running",
		zap.String("queue_mode", cfg.Worker.QueueMode),
		zap.Int("workers", cfg.Worker.WorkerCount))

	<-ctx.Done()
	logger.Info("worker shutting down")

	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if refresh != nil {
		refresh.Shutdown(shutdownCtx)
	}
	deps.Pool.Shutdown(shutdownCtx)

	logger.Info("worker stopped")
	return nil
}
