// Package cache holds Redis-backed bookkeeping shared by API and worker processes.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fileflow/internal/config"
)

const leasePrefix = "fileflow:lease:job:"

// LeaseKey is the Redis key marking a job as having a live queue message.
func LeaseKey(jobID int64) string {
	return leasePrefix + strconv.FormatInt(jobID, 10)
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisLeases records which jobs currently have a message in the dispatch queue.
// A lease is taken on publish and on retry, and dropped once the job settles.
type RedisLeases struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisLeases(client redis.Cmdable, ttl time.Duration) *RedisLeases {
	return &RedisLeases{client: client, ttl: ttl}
}

func (l *RedisLeases) Track(ctx context.Context, jobID int64) error {
	if err := l.client.Set(ctx, LeaseKey(jobID), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("track lease %d: %w", jobID, err)
	}
	return nil
}

func (l *RedisLeases) Release(ctx context.Context, jobID int64) error {
	if err := l.client.Del(ctx, LeaseKey(jobID)).Err(); err != nil {
		return fmt.Errorf("release lease %d: %w", jobID, err)
	}
	return nil
}

func (l *RedisLeases) IsLive(ctx context.Context, jobID int64) (bool, error) {
	n, err := l.client.Exists(ctx, LeaseKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("check lease %d: %w", jobID, err)
	}
	return n > 0, nil
}
