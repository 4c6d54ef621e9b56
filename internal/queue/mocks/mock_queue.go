package mocks

import (
	"context"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/queue"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg model.WorkMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockDelivery records how a worker settled a delivery.
type MockDelivery struct {
	mock.Mock
	Payload  []byte
	Attempts int
}

var _ queue.Delivery = (*MockDelivery)(nil)

func (m *MockDelivery) Body() []byte { return m.Payload }

func (m *MockDelivery) Attempt() int { return m.Attempts }

func (m *MockDelivery) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDelivery) Retry(delay time.Duration) error {
	args := m.Called(delay)
	return args.Error(0)
}

func (m *MockDelivery) Reject() error {
	args := m.Called()
	return args.Error(0)
}
