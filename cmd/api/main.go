package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fileflow/docs"
	"fileflow/internal/bootstrap"
	"fileflow/internal/config"
	handlers "fileflow/internal/http/handler"
	"fileflow/internal/http/middleware"
	"fileflow/internal/logger"
	"fileflow/internal/otel"
)

// multipartOverhead leaves room for form boundaries and headers above MAX_FILE_SIZE.
const multipartOverhead = 1 << 20

// @title fileflow API
// @version 1.0
// @description Asynchronous file ingestion: upload, track and download processed files.
// @BasePath /
func main() {
	cfg := config.Load()
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.Location())

	if err := cfg.Worker.Validate(); err != nil {
		log.Error("invalid worker configuration", "error", err)
		os.Exit(1)
	}
	if bootstrap.InProcessOnly(cfg) && !cfg.RunWorkers {
		log.Error("memory drivers require RUN_WORKERS=true")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "fileflow-api", log)
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

	sub := comps.Submission(cfg)
	trk := comps.Tracking(cfg)

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.MaxFileSize) + multipartOverhead,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log.With("component", "http")))
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, comps.Store, sub, trk, handlers.Options{MaxFileSize: cfg.MaxFileSize})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	var workers sync.WaitGroup
	if cfg.RunWorkers {
		pool, rec := comps.Workers(cfg, sub)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := pool.Run(ctx); err != nil {
				log.Error("worker pool failed", "error", err)
				stop()
			}
		}()
		rec.Start(ctx)
		defer rec.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(":" + cfg.Port)
	}()
	log.Info("api started", "port", cfg.Port, "run_workers", cfg.RunWorkers)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("failed to start server", "error", err)
		}
		stop()
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	workers.Wait()

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(tctx); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}
	log.Info("api stopped")
}
