package mocks

import (
	"context"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockTrackingService struct {
	mock.Mock
}

func (m *MockTrackingService) GetStatus(ctx context.Context, fileID, ownerID int64) (*model.FileStatusView, error) {
	args := m.Called(ctx, fileID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileStatusView), args.Error(1)
}

func (m *MockTrackingService) List(ctx context.Context, ownerID int64, page, limit int) (*service.FileListResult, error) {
	args := m.Called(ctx, ownerID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FileListResult), args.Error(1)
}

func (m *MockTrackingService) DownloadURL(ctx context.Context, fileID, ownerID int64, expiry time.Duration) (string, error) {
	args := m.Called(ctx, fileID, ownerID, expiry)
	return args.String(0), args.Error(1)
}
