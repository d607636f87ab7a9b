package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/cli"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	ctx := context.Background()
	logger.InfoContext(ctx, "Starting ledger-worker", "audit_interval", cfg.AuditInterval)

	store := cli.OpenStore(ctx, logger, cfg)
	defer store.Close()

	amqpClient := cli.ConnectAMQP(ctx, logger, cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	// The worker only audits, so it publishes nothing.
	m := metrics.New()
	svc := services.NewLedgerService(store, nil, m, services.Options{})

	lw := worker.NewLedgerWorker(svc, cfg.AuditInterval)

	var metricsSrv *http.Server
	if cfg.WorkerMetricsPort != "" {
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(runCtx)

	if metricsSrv != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			logger.InfoContext(gctx, "Serving worker metrics", "port", cfg.WorkerMetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeLedgerEvents(gctx, lw.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.InfoContext(ctx, "Skipping event consumption - no AMQP client available")
	}

	g.Go(func() error {
		lw.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(runCtx, done)
	logger.InfoContext(ctx, "Worker stopped gracefully")
}
