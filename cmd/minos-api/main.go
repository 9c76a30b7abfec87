package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minos-eval/minos/pkg/config"
	"github.com/minos-eval/minos/pkg/erebus"
	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/hermes/audit"
	"github.com/minos-eval/minos/pkg/ingest"
	"github.com/minos-eval/minos/pkg/olympus"
	"github.com/minos-eval/minos/pkg/themis"
)

func main() {
	configFile := flag.String("config", os.Getenv("MINOS_CONFIG"), "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides server.addr)")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configFile)
	if err != nil {
		hermes.NewZerologAdapter(os.Stderr, "info", "json").Error(ctx, "Failed to load configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Addr = *listenAddr
	}

	logger := hermes.NewZerologAdapter(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	fatal := func(msg string, err error) {
		logger.Error(ctx, msg, map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := hermes.NewPrometheusMetrics(registry)

	store, err := erebus.Open(ctx, cfg.Store.Kind, cfg.Store.Root, erebus.S3Options{
		Endpoint:     cfg.Store.Endpoint,
		Region:       cfg.Store.Region,
		Bucket:       cfg.Store.Bucket,
		AccessKey:    cfg.Store.AccessKey,
		SecretKey:    cfg.Store.SecretKey,
		UsePathStyle: cfg.Store.UsePathStyle,
	})
	if err != nil {
		fatal("Failed to initialize store", err)
	}

	schema := ingest.Schema{
		Timestamp:  cfg.Schema.Timestamp,
		Actual:     cfg.Schema.Actual,
		Median:     cfg.Schema.Median,
		Lower:      cfg.Schema.Lower,
		Upper:      cfg.Schema.Upper,
		Feature:    cfg.Schema.Feature,
		Importance: cfg.Schema.Importance,
		Baselines:  cfg.Schema.Baselines,
	}
	loader := ingest.NewLoader(schema, store, logger)

	gates, err := themis.LoadGatesFile(cfg.Gates.File)
	if err != nil {
		fatal("Failed to load gates", err)
	}
	gateEvaluator, err := themis.NewGateEvaluator(gates)
	if err != nil {
		fatal("Failed to compile gates", err)
	}

	manager := &olympus.Manager{
		Engine: evaluator.NewEngine(cfg.EngineOptions(), logger, metrics),
		Gates:  gateEvaluator,
		Logger: logger,
	}
	if cfg.Audit.Path != "" {
		ledger, closer, err := audit.OpenLedger(cfg.Audit.Path, []byte(cfg.Audit.Key))
		if err != nil {
			fatal("Failed to open audit ledger", err)
		}
		defer closer.Close()
		manager.Ledger = ledger
	}

	api := olympus.NewServer(manager, loader, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), olympus.ServerOptions{
		APIKey:         cfg.Server.APIKey,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)
	defer api.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info(ctx, "Starting minos API", map[string]any{
			"addr":   cfg.Server.Addr,
			"store":  cfg.Store.Kind,
			"gates":  gateEvaluator.Len(),
			"ledger": cfg.Audit.Path != "",
			"auth":   cfg.Server.APIKey != "",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server forced to shutdown", map[string]any{"error": err.Error()})
	}
	logger.Info(ctx, "Server exited", nil)
}
