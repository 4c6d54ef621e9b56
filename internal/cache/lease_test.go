package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseKey(t *testing.T) {
	assert.Equal(t, "fileflow:lease:job:42", LeaseKey(42))
}

func TestRedisLeases(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	leases := NewRedisLeases(db, time.Hour)

	mock.ExpectSet("fileflow:lease:job:7", "1", time.Hour).SetVal("OK")
	require.NoError(t, leases.Track(ctx, 7))

	mock.ExpectExists("fileflow:lease:job:7").SetVal(1)
	live, err := leases.IsLive(ctx, 7)
	require.NoError(t, err)
	assert.True(t, live)

	mock.ExpectDel("fileflow:lease:job:7").SetVal(1)
	require.NoError(t, leases.Release(ctx, 7))

	mock.ExpectExists("fileflow:lease:job:7").SetVal(0)
	live, err = leases.IsLive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, live)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLeases_Errors(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	leases := NewRedisLeases(db, time.Minute)

	mock.ExpectSet("fileflow:lease:job:1", "1", time.Minute).SetErr(errors.New("READONLY"))
	assert.ErrorContains(t, leases.Track(ctx, 1), "track lease 1")

	mock.ExpectExists("fileflow:lease:job:1").SetErr(errors.New("timeout"))
	_, err := leases.IsLive(ctx, 1)
	assert.ErrorContains(t, err, "timeout")

	assert.NoError(t, mock.ExpectationsWereMet())
}
