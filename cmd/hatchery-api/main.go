package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/api"
	"github.com/hatchery-io/hatchery/internal/logstream"
	"github.com/hatchery-io/hatchery/internal/naming"
	"github.com/hatchery-io/hatchery/internal/observability"
	"github.com/hatchery-io/hatchery/internal/orchestrator"
	"github.com/hatchery-io/hatchery/internal/provider"
	"github.com/hatchery-io/hatchery/internal/remoteexec"
	"github.com/hatchery-io/hatchery/internal/store"
	"github.com/hatchery-io/hatchery/internal/tunnel"
)

func main() {
	_ = godotenv.Load()

	var cfg api.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var orchCfg orchestrator.Config
	if err := envconfig.Process("", &orchCfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var provCfg provider.Config
	if err := envconfig.Process("", &provCfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("schema apply failed", zap.Error(err))
	}

	scheme, err := naming.NewScheme(cfg.NamePrefix, cfg.Domain)
	if err != nil {
		log.Fatal("naming scheme invalid", zap.Error(err))
	}

	registry := provider.NewRegistry(provCfg)
	broker := logstream.NewBroker()
	queries := store.New(pool)
	engine := remoteexec.NewEngine(queries, broker, nil, log)

	var exposer orchestrator.Exposer
	if provCfg.Tunnel.Configured() {
		mgr, err := tunnel.NewManager(provCfg.Tunnel, scheme, log)
		if err != nil {
			log.Fatal("tunnel manager init failed", zap.Error(err))
		}
		exposer = mgr
	} else {
		log.Warn("tunnel credentials absent, exposure disabled")
	}

	prov := orchestrator.NewProvisioner(queries, registry, engine, exposer, scheme, orchCfg, log)

	// Main API server
	apiHandler := api.NewAPI(pool, prov, broker, registry.Keys(), log)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("API server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("API server stopped")
}
