package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the processed-file archive.
// An empty Endpoint disables archiving.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// RedisConfig holds settings for the queue lease registry.
// An empty Addr disables lease tracking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// WorkerConfig is the explicit retry and staleness policy handed to the worker pool
// and the status reconciler at construction.
type WorkerConfig struct {
	QueueEndpoint          string
	QueueName              string
	Concurrency            int
	MaxAttempts            int
	BaseBackoffMs          int
	BackoffMultiplier      float64
	MaxBackoffMs           int
	StaleThresholdMs       int
	QueuedStaleThresholdMs int
	ReconcileIntervalMs    int
	ReconcileBatchSize     int
}

var (
	ErrInvalidConcurrency = errors.New("worker concurrency must be positive")
	ErrInvalidAttempts    = errors.New("max attempts must be positive")
	ErrInvalidBackoff     = errors.New("backoff base must be positive and multiplier at least 1")
	ErrInvalidStaleness   = errors.New("stale thresholds and reconcile interval must be positive")
)

// Validate rejects policies the pipeline cannot run with.
func (w WorkerConfig) Validate() error {
	if w.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if w.MaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if w.BaseBackoffMs <= 0 || w.BackoffMultiplier < 1 || w.MaxBackoffMs < w.BaseBackoffMs {
		return ErrInvalidBackoff
	}
	if w.StaleThresholdMs <= 0 || w.QueuedStaleThresholdMs <= 0 || w.ReconcileIntervalMs <= 0 {
		return ErrInvalidStaleness
	}
	return nil
}

func (w WorkerConfig) BaseBackoff() time.Duration {
	return time.Duration(w.BaseBackoffMs) * time.Millisecond
}

func (w WorkerConfig) MaxBackoff() time.Duration {
	return time.Duration(w.MaxBackoffMs) * time.Millisecond
}

func (w WorkerConfig) StaleThreshold() time.Duration {
	return time.Duration(w.StaleThresholdMs) * time.Millisecond
}

func (w WorkerConfig) QueuedStaleThreshold() time.Duration {
	return time.Duration(w.QueuedStaleThresholdMs) * time.Millisecond
}

func (w WorkerConfig) ReconcileInterval() time.Duration {
	return time.Duration(w.ReconcileIntervalMs) * time.Millisecond
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	Timezone    string
	LogLevel    string
	UploadDir   string
	MaxFileSize int64
	// StoreDriver is "postgres" or "memory".
	StoreDriver string
	// QueueDriver is "rabbitmq" or "memory".
	QueueDriver    string
	RunWorkers     bool
	MetricsPort    string
	StatusCacheTTL time.Duration
	StatusCacheMax int
	Database       DatabaseConfig
	MinIO          MinIOConfig
	Redis          RedisConfig
	Worker         WorkerConfig
}

// Location resolves the configured time zone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:        getEnv("APP_HOST", "localhost:8080"),
		Port:           getEnv("PORT", "8080"),
		Timezone:       getEnv("APP_TIMEZONE", "UTC"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		MaxFileSize:    int64(getEnvInt("MAX_FILE_SIZE", 10<<20)),
		StoreDriver:    getEnv("STORE_DRIVER", "postgres"),
		QueueDriver:    getEnv("QUEUE_DRIVER", "rabbitmq"),
		RunWorkers:     getEnvBool("RUN_WORKERS", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
		StatusCacheTTL: getEnvDuration("STATUS_CACHE_TTL", 5*time.Minute),
		StatusCacheMax: getEnvInt("STATUS_CACHE_SIZE", 1024),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LeaseTTL: getEnvDuration("REDIS_LEASE_TTL", 24*time.Hour),
		},
		Worker: WorkerConfig{
			QueueEndpoint:          getEnv("RABBITMQ_URL", ""),
			QueueName:              getEnv("QUEUE_NAME", "file-processing"),
			Concurrency:            getEnvInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:            getEnvInt("WORKER_MAX_ATTEMPTS", 3),
			BaseBackoffMs:          getEnvInt("WORKER_BASE_BACKOFF_MS", 2000),
			BackoffMultiplier:      getEnvFloat("WORKER_BACKOFF_MULTIPLIER", 2),
			MaxBackoffMs:           getEnvInt("WORKER_MAX_BACKOFF_MS", 60000),
			StaleThresholdMs:       getEnvInt("WORKER_STALE_THRESHOLD_MS", 10*60*1000),
			QueuedStaleThresholdMs: getEnvInt("WORKER_QUEUED_STALE_THRESHOLD_MS", 30*60*1000),
			ReconcileIntervalMs:    getEnvInt("RECONCILE_INTERVAL_MS", 60*1000),
			ReconcileBatchSize:     getEnvInt("RECONCILE_BATCH_SIZE", 50),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
