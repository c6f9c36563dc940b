package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"geminichat/database"
	"geminichat/internal/config"
	"geminichat/internal/dispatch"
	"geminichat/internal/events"
	"geminichat/internal/logging"
	"geminichat/internal/metrics"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/provider"
	"geminichat/internal/scheduler"
	"geminichat/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("generation_worker_failed", "error", err)
		os.Exit(1)
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb, err := database.ConnectRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	p, err := provider.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	generator := worker.NewGenerator(
		repository.NewMessageRepository(db),
		p,
		events.NewRedisPublisher(rdb),
		worker.GeneratorOptions{SystemUserID: cfg.SystemUserID, HistoryLimit: cfg.HistoryLimit},
		logger,
	)

	name := consumerName()
	consumer := dispatch.NewConsumer(rdb, dispatch.ConsumerOptions{
		Group:     cfg.DispatchGroup,
		Name:      name,
		ClaimIdle: cfg.DispatchClaimIdle,
	}, logger)
	streams := dispatch.PartitionStreams(cfg.DispatchStream, cfg.DispatchPartitions)
	pool := worker.NewPool(consumer, streams, generator.Handle, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		return err
	}
	// abandoned tasks wait at most ~1.5x ClaimIdle
	if err := sched.Every("reclaim_stale_tasks", cfg.DispatchClaimIdle/2, pool.Reclaim); err != nil {
		return err
	}
	sched.Start()

	var metricsSrv *http.Server
	if cfg.PrometheusEnabled {
		metricsSrv = metrics.Serve(fmt.Sprintf(":%d", cfg.WorkerMetricsPort))
	}

	logger.Info("generation_worker_starting",
		"consumer", name,
		"provider", p.Name(),
		"streams", streams,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler_stop_failed", "error", err)
		}
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("generation_worker_stopped")
	return err
}
