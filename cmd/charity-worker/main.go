package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"charity/internal/cli"
	applog "charity/internal/log"
	"charity/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)
	logger.Info("Starting charity-worker", "backend", cfg.DataBackend)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	}()

	reconciler := worker.NewReconciler(res.Store, worker.ReconcilerConfig{Interval: cfg.ReconcileInterval})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		cancel()
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Reconciler stop error", applog.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := reconciler.Start(ctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	if res.Publisher != nil {
		g.Go(func() error {
			err := res.Publisher.ConsumeWithReconnect(gctx, reconciler.HandleDonationRecorded)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on periodic sweeps only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", applog.FieldError, err)
		cancel()
		_ = reconciler.Stop(context.Background())
		os.Exit(1)
	}

	cli.WaitForShutdown(sigCtx, done)
	logger.Info("Worker stopped")
}
