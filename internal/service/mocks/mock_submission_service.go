package mocks

import (
	"context"
	"io"

	"fileflow/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockSubmissionService struct {
	mock.Mock
}

func (m *MockSubmissionService) Submit(ctx context.Context, d model.UploadDescriptor) (*model.SubmitResult, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmitResult), args.Error(1)
}

func (m *MockSubmissionService) Ingest(ctx context.Context, r io.Reader, originalName, mediaType string, ownerID int64) (*model.SubmitResult, error) {
	args := m.Called(ctx, r, originalName, mediaType, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmitResult), args.Error(1)
}

func (m *MockSubmissionService) Redispatch(ctx context.Context, fileID int64) (*model.Job, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}
