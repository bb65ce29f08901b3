package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

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
	"github.com/hatchery-io/hatchery/internal/session"
	"github.com/hatchery-io/hatchery/internal/store"
	"github.com/hatchery-io/hatchery/internal/tunnel"
	"github.com/hatchery-io/hatchery/internal/worker"
)

func main() {
	_ = godotenv.Load()

	var cfg worker.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var apiCfg api.Config
	if err := envconfig.Process("", &apiCfg); err != nil {
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

	scheme, err := naming.NewScheme(apiCfg.NamePrefix, apiCfg.Domain)
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
	runner := session.NewRunner(queries, engine, orchCfg.Workdir, log)

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	w := worker.New(queries, prov, runner, engine, cfg, log)
	w.Run(ctx)
}
