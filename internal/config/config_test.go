package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("WORKER_MAX_ATTEMPTS", "5")
	t.Setenv("WORKER_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("STATUS_CACHE_TTL", "30s")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 1.5, cfg.Worker.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.StatusCacheTTL)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 2000, cfg.Worker.BaseBackoffMs)
	assert.Equal(t, 2.0, cfg.Worker.BackoffMultiplier)
	assert.Equal(t, "file-processing", cfg.Worker.QueueName)
	assert.NoError(t, cfg.Worker.Validate())
	assert.False(t, cfg.MinIO.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.LeaseTTL)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestWorkerConfig_Validate(t *testing.T) {
	valid := WorkerConfig{
		Concurrency:            2,
		MaxAttempts:            3,
		BaseBackoffMs:          100,
		BackoffMultiplier:      2,
		MaxBackoffMs:           1000,
		StaleThresholdMs:       1000,
		QueuedStaleThresholdMs: 1000,
		ReconcileIntervalMs:    1000,
	}

	tests := []struct {
		name    string
		mutate  func(w *WorkerConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(w *WorkerConfig) {}},
		{name: "zero concurrency", mutate: func(w *WorkerConfig) { w.Concurrency = 0 }, wantErr: ErrInvalidConcurrency},
		{name: "zero attempts", mutate: func(w *WorkerConfig) { w.MaxAttempts = 0 }, wantErr: ErrInvalidAttempts},
		{name: "shrinking multiplier", mutate: func(w *WorkerConfig) { w.BackoffMultiplier = 0.5 }, wantErr: ErrInvalidBackoff},
		{name: "cap below base", mutate: func(w *WorkerConfig) { w.MaxBackoffMs = 10 }, wantErr: ErrInvalidBackoff},
		{name: "no stale threshold", mutate: func(w *WorkerConfig) { w.StaleThresholdMs = 0 }, wantErr: ErrInvalidStaleness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid
			tt.mutate(&w)
			err := w.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"
	defer os.Unsetenv(key)

	os.Setenv(key, "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration(key, time.Second))

	os.Setenv(key, "soon")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}
