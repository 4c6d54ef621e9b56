// Package bootstrap opens the infrastructure shared by the api and worker
// processes and assembles the pipeline services on top of it.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"fileflow/internal/analyzer"
	"fileflow/internal/cache"
	"fileflow/internal/config"
	"fileflow/internal/database"
	"fileflow/internal/database/migration"
	"fileflow/internal/queue"
	queuememory "fileflow/internal/queue/memory"
	"fileflow/internal/queue/rabbitmq"
	"fileflow/internal/repository"
	recordmemory "fileflow/internal/repository/memory"
	"fileflow/internal/repository/postgres"
	"fileflow/internal/service"
	"fileflow/internal/storage"
)

const (
	DriverPostgres = "postgres"
	DriverRabbitMQ = "rabbitmq"
	DriverMemory   = "memory"

	memoryQueueBuffer = 1024
)

var ErrUnknownDriver = errors.New("unknown driver")

// Components holds opened infrastructure. Optional parts are nil when disabled.
type Components struct {
	DB       *sql.DB
	Store    repository.RecordStore
	Queue    queue.Queue
	Leases   service.LeaseRegistry
	Archiver *storage.Archiver
	Metrics  *service.Metrics

	redis *redis.Client
	log   *slog.Logger
}

// Open connects every configured backend. On error, whatever was opened is closed again.
func Open(ctx context.Context, cfg *config.AppConfig, reg prometheus.Registerer, log *slog.Logger) (*Components, error) {
	c := &Components{log: log, Metrics: service.NewMetrics(reg)}
	if err := c.open(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) open(ctx context.Context, cfg *config.AppConfig) error {
	if err := c.openStore(ctx, cfg); err != nil {
		return err
	}
	if err := c.openQueue(ctx, cfg); err != nil {
		return err
	}
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		c.redis = client
		c.Leases = cache.NewRedisLeases(client, cfg.Redis.LeaseTTL)
		c.log.Info("lease registry enabled", "redis_addr", cfg.Redis.Addr)
	}
	if cfg.MinIO.Enabled() {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("initialize object storage: %w", err)
		}
		c.Archiver = storage.NewArchiver(objStore)
		c.log.Info("archive enabled", "bucket", cfg.MinIO.Bucket)
	}
	return nil
}

func (c *Components) openStore(ctx context.Context, cfg *config.AppConfig) error {
	switch cfg.StoreDriver {
	case DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		c.DB = db
		if err := migration.EnsureMigrated(ctx, db, c.log, cfg.Database.Host); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		c.Store = postgres.NewRecordPostgres(db)
	case DriverMemory:
		c.Store = recordmemory.NewRecordMemory()
	default:
		return fmt.Errorf("%w: store %q", ErrUnknownDriver, cfg.StoreDriver)
	}
	c.log.Info("record store ready", "driver", cfg.StoreDriver)
	return nil
}

func (c *Components) openQueue(ctx context.Context, cfg *config.AppConfig) error {
	switch cfg.QueueDriver {
	case DriverRabbitMQ:
		q, err := rabbitmq.Dial(ctx, cfg.Worker.QueueEndpoint, cfg.Worker.QueueName, cfg.Worker.Concurrency, c.log)
		if err != nil {
			return fmt.Errorf("connect to queue: %w", err)
		}
		c.Queue = q
	case DriverMemory:
		c.Queue = queuememory.New(memoryQueueBuffer, queuememory.WithLogger(c.log))
	default:
		return fmt.Errorf("%w: queue %q", ErrUnknownDriver, cfg.QueueDriver)
	}
	c.log.Info("dispatch queue ready", "driver", cfg.QueueDriver, "queue", cfg.Worker.QueueName)
	return nil
}

// InProcessOnly reports whether the configuration only works when workers
// run inside the api process.
func InProcessOnly(cfg *config.AppConfig) bool {
	return cfg.StoreDriver == DriverMemory || cfg.QueueDriver == DriverMemory
}

// Submission builds the submission service.
func (c *Components) Submission(cfg *config.AppConfig) service.SubmissionService {
	return service.NewSubmissionService(c.Store, c.Queue, c.Leases, cfg.UploadDir, c.log)
}

// Tracking builds the tracking service with its status cache.
func (c *Components) Tracking(cfg *config.AppConfig) service.TrackingService {
	var presigner service.Presigner
	if c.Archiver != nil {
		presigner = c.Archiver
	}
	var statusCache *service.StatusCache
	if cfg.StatusCacheMax > 0 {
		statusCache = service.NewStatusCache(cfg.StatusCacheMax, cfg.StatusCacheTTL)
	}
	return service.NewTrackingService(c.Store, presigner, statusCache)
}

// Workers builds the worker pool and the status reconciler.
func (c *Components) Workers(cfg *config.AppConfig, sub service.SubmissionService) (*service.WorkerPool, *service.Reconciler) {
	opts := []service.WorkerOption{service.WithMetrics(c.Metrics)}
	if c.Archiver != nil {
		opts = append(opts, service.WithArchiver(c.Archiver))
	}
	if c.Leases != nil {
		opts = append(opts, service.WithLeases(c.Leases))
	}
	pool := service.NewWorkerPool(cfg.Worker, c.Store, c.Queue, analyzer.New(), c.log, opts...)
	rec := service.NewReconciler(cfg.Worker, c.Store, sub, c.Leases, c.Metrics, c.log)
	return pool, rec
}

// Close releases every opened backend.
func (c *Components) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.log.Warn("queue close failed", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warn("redis close failed", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.log.Warn("database close failed", "error", err)
		}
	}
}
