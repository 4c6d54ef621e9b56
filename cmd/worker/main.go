package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fileflow/internal/bootstrap"
	"fileflow/internal/config"
	"fileflow/internal/logger"
	"fileflow/internal/otel"
)

func main() {
	cfg := config.Load()
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.Location())

	if err := cfg.Worker.Validate(); err != nil {
		log.Error("invalid worker configuration", "error", err)
		os.Exit(1)
	}
	if bootstrap.InProcessOnly(cfg) {
		log.Error("memory drivers only work inside the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "fileflow-worker", log)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	comps, err := bootstrap.Open(ctx, cfg, reg, log)
	if err != nil {
		log.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer comps.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           otelhttp.NewHandler(mux, "worker-metrics"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	pool, rec := comps.Workers(cfg, comps.Submission(cfg))
	rec.Start(ctx)
	log.Info("worker started", "metrics_port", cfg.MetricsPort)

	if err := pool.Run(ctx); err != nil {
		log.Error("worker pool failed", "error", err)
	}
	rec.Stop()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("metrics server shutdown", "error", err)
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}
	log.Info("worker stopped")
}
