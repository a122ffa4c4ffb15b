package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/config"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/bootstrap"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/maintenance"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
)

const serviceName = "rvd-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	mode := bootstrap.SetGinMode(cfg.App.Environment)
	log.Info("starting", zap.String("env", cfg.App.Environment), zap.String("gin_mode", mode))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	projects, ws, err := bootstrap.OpenProjects(&cfg.Workspace, log, m)
	if err != nil {
		return err
	}

	accounts, closeAccounts, err := bootstrap.OpenAccounts(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeAccounts(); err != nil {
			log.Warn("closing accounts backend", zap.Error(err))
		}
	}()

	janitor := maintenance.NewJanitor(ws.BasePath(), cfg.Maintenance.JanitorMaxAge, log, m)
	if err := janitor.Start(cfg.Maintenance.JanitorSchedule); err != nil {
		return err
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Config:      cfg,
		Projects:    projects,
		Accounts:    accounts,
		Logger:      log,
		Metrics:     m,
		Gatherer:    reg,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", server.Addr),
			zap.String("workspace", ws.BasePath()),
			zap.Int("project_version", projects.Version()),
			zap.String("accounts", cfg.Accounts.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	janitor.Stop(shutdownCtx)

	log.Info("stopped")
	return nil
}
