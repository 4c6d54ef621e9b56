package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockLeaseRegistry struct {
	mock.Mock
}

func (m *MockLeaseRegistry) Track(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockLeaseRegistry) Release(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockLeaseRegistry) IsLive(ctx context.Context, jobID int64) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}
