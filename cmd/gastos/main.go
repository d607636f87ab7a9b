package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	store := cli.OpenStore(ctx, logger, cfg)
	defer store.Close()

	var publisher services.Publisher
	var amqpClient *amqp.Client
	if amqpClient = cli.ConnectAMQP(ctx, logger, cfg); amqpClient != nil {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	m := metrics.New()
	svc := services.NewLedgerService(store, publisher, m, services.Options{
		Applier: services.ApplierOptions{
			Marker:       cfg.RecurringMarker,
			DefaultPayer: cfg.DefaultPayer,
		},
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})

	srv := apphttp.NewServer(":"+cfg.Port, svc, m, apphttp.Options{
		CORSOrigins:          cfg.CORSOrigins,
		WritesPerMinute:      cfg.WritesPerMinute,
		CacheCleanupInterval: cfg.CacheTTL,
		Logger:               logger.WithComponent(log.ComponentHTTP),
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Server shutdown error", log.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Starting gastos server",
		"port", cfg.Port,
		"driver", cfg.DBDriver,
		"events", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.ErrorContext(ctx, "Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.InfoContext(ctx, "Server stopped gracefully")
}
