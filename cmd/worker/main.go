package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/config"
	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/events"
	"github.com/rpattn/canvass/internal/ingestion"
	"github.com/rpattn/canvass/internal/logging"
	"github.com/rpattn/canvass/internal/metrics"
	"github.com/rpattn/canvass/internal/queue"
	"github.com/rpattn/canvass/internal/repository"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	base, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	logger := logrus.NewEntry(base).WithField("service", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.Database
	// One connection per slot plus the claim loop and heartbeats.
	if want := int32(cfg.Worker.Concurrency*2 + 2); dbCfg.MaxConns < want {
		dbCfg.MaxConns = want
	}
	conn, err := db.NewConnection(ctx, dbCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer conn.Close()

	objects, err := cfg.Storage.OpenObjectStore(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to open object store")
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, lifecycle events will be dropped until it recovers")
		}
		publisher = events.NewRedisPublisher(client, cfg.Redis.ChannelPrefix)
	}

	store := repository.NewStore(conn.Pool, queue.NewPublisher(queue.DefaultTable))
	service := ingestion.NewService(store,
		ingestion.WithObjectStore(objects),
		ingestion.WithConverter(ingestion.NewSubprocessConverter(cfg.Converter.Command, cfg.Converter.Timeout)),
		ingestion.WithEvents(publisher),
		ingestion.WithMetrics(metrics.Import{}),
		ingestion.WithLogger(logger),
		ingestion.WithCheckpointEvery(cfg.Import.CheckpointEvery),
		ingestion.WithGeoReference(ingestion.GeoReference{
			Latitude:  cfg.Import.Latitude,
			Longitude: cfg.Import.Longitude,
			Jitter:    cfg.Import.Jitter,
		}),
	)

	worker, err := queue.NewWorker(conn.Pool, queue.DefaultTable, map[string]queue.Handler{
		ingestion.JobName: ingestion.NewQueueHandler(service),
	}, queue.WorkerOptions{
		Concurrency:    cfg.Worker.Concurrency,
		PollInterval:   cfg.Worker.PollInterval,
		LockTTL:        cfg.Worker.LockTTL,
		HandlerTimeout: cfg.Worker.HandlerTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()

	logger.WithField("concurrency", cfg.Worker.Concurrency).Info("starting import worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("worker stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("worker exited")
}
