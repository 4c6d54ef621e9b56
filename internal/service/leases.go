package service

import "context"

// LeaseRegistry tracks jobs that have a message sitting in the dispatch queue.
// Implemented by cache.RedisLeases.
type LeaseRegistry interface {
	Track(ctx context.Context, jobID int64) error
	Release(ctx context.Context, jobID int64) error
	IsLive(ctx context.Context, jobID int64) (bool, error)
}
