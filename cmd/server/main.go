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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/auth"
	"github.com/rpattn/canvass/internal/config"
	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/ingestion"
	"github.com/rpattn/canvass/internal/logging"
	"github.com/rpattn/canvass/internal/metrics"
	"github.com/rpattn/canvass/internal/middleware"
	"github.com/rpattn/canvass/internal/queue"
	"github.com/rpattn/canvass/internal/reconcile"
	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/voters"
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
	logger := logrus.NewEntry(base).WithField("service", "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer conn.Close()

	objects, err := cfg.Storage.OpenObjectStore(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to open object store")
	}

	var verifier *auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			logger.WithError(err).Fatal("failed to build token verifier")
		}
	} else {
		logger.Warn("no jwt secret configured, trusting development headers")
	}

	store := repository.NewStore(conn.Pool, queue.NewPublisher(queue.DefaultTable))
	repos := store.Repos()

	reconciler := reconcile.NewService(store, reconcile.WithMetrics(metrics.Reconcile{}), reconcile.WithLogger(logger))

	apiRouter := mux.NewRouter()
	ingestion.NewHandler(ingestion.NewSubmitter(store), objects, logger).Register(apiRouter)
	voters.NewHandler(voters.NewService(store, reconciler), logger).Register(apiRouter)
	reconcile.NewHandler(reconciler, repos.Voters, logger).Register(apiRouter)

	apiHandler := auth.Middleware(verifier)(middleware.DataLoaderMiddleware(repos.Voters)(apiRouter))

	root := mux.NewRouter()
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	root.PathPrefix("/api/").Handler(apiHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(logger)(root)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	logger.Info("server exited")
}
