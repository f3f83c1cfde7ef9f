package main

import (
	"context"
	"errors"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"go-recon-dashboard/internal/auth"
	"go-recon-dashboard/internal/config"
	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/connectors/tokenstore"
	"go-recon-dashboard/internal/dashboard"
	httpapi "go-recon-dashboard/internal/http"
	"go-recon-dashboard/internal/logging"
	"go-recon-dashboard/internal/realtime"
	"go-recon-dashboard/internal/traces"
)

var version = "dev"

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, traces.Options{
		Endpoint:      cfg.OTLPEndpoint,
		Insecure:      cfg.OTLPInsecure,
		SamplePercent: cfg.TraceSamplePercent,
		Version:       version,
	}, logger)
	if err != nil {
		return err
	}

	store, err := tokenstore.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	session := auth.NewSession(store, logger)
	if err := session.Hydrate(ctx); err != nil {
		logger.Warn("could not restore session", zap.Error(err))
	}

	client := reconapi.NewClient(cfg.APIBaseURL, cfg.APITimeout, session)
	controller := dashboard.NewController(client, logger, dashboard.Options{
		Interval:        cfg.RefreshInterval,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})

	hub := realtime.NewHub(logger, cfg.CORSOrigins)
	go hub.Run(ctx)

	srv := httpapi.NewServer(httpapi.Deps{
		Config:     cfg,
		Logger:     logger,
		Controller: controller,
		Backend:    client,
		Session:    session,
		Hub:        hub,
		TokenStore: store,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("starting dashboard",
		zap.String("version", version),
		zap.String("addr", cfg.ListenAddr),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("token_store", store.Driver()),
	)

	if !cfg.AuthDisabled && !session.Authenticated() {
		logger.Info("no session yet, dashboard data loads after login")
	}
	if err := controller.Start(ctx); err != nil {
		logger.Warn("initial dashboard load failed", zap.Error(err))
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	controller.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}
