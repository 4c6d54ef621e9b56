package mocks

import (
	"context"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) CreateFileWithJob(ctx context.Context, file *model.File, job *model.Job) (*model.File, *model.Job, error) {
	args := m.Called(ctx, file, job)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.File), args.Get(1).(*model.Job), args.Error(2)
}

func (m *MockRecordStore) CreateRedispatchJob(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Job), args.Bool(1), args.Error(2)
}

func (m *MockRecordStore) FindFileByID(ctx context.Context, id int64) (*model.File, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.File), args.Error(1)
}

func (m *MockRecordStore) FindJobByID(ctx context.Context, id int64) (*model.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockRecordStore) FindLatestJobByFileID(ctx context.Context, fileID int64) (*model.Job, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockRecordStore) ListFilesByOwner(ctx context.Context, ownerID int64, pq repository.PageQuery) (*repository.PageResult[model.FileWithJob], error) {
	args := m.Called(ctx, ownerID, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.FileWithJob]), args.Error(1)
}

func (m *MockRecordStore) MarkProcessing(ctx context.Context, jobID, fileID int64, at time.Time) (bool, error) {
	args := m.Called(ctx, jobID, fileID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) CompleteJob(ctx context.Context, jobID, fileID int64, data *model.ExtractedData, at time.Time) (bool, error) {
	args := m.Called(ctx, jobID, fileID, data, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) FailJob(ctx context.Context, jobID, fileID int64, message string, at time.Time) (bool, error) {
	args := m.Called(ctx, jobID, fileID, message, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) MarkDispatchFailed(ctx context.Context, jobID int64, message string, at time.Time) (bool, error) {
	args := m.Called(ctx, jobID, message, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) MarkFileFailed(ctx context.Context, fileID int64) (bool, error) {
	args := m.Called(ctx, fileID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRecordStore) ClaimStaleJobs(ctx context.Context, q repository.StaleJobQuery) ([]model.Job, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Job), args.Error(1)
}

func (m *MockRecordStore) ListRedispatchCandidates(ctx context.Context, limit int) ([]repository.RedispatchCandidate, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.RedispatchCandidate), args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
