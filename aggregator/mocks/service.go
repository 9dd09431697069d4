package mocks

import (
	"context"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ aggregator.Service = (*MockService)(nil)

// MockService is a mock implementation of the aggregator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateRun(ctx context.Context, cfg aggregator.RunConfig) (aggregator.Run, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(aggregator.Run), args.Error(1)
}

func (m *MockService) GetRun(ctx context.Context, runID string) (aggregator.Run, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(aggregator.Run), args.Error(1)
}

func (m *MockService) ListRuns(ctx context.Context, offset, limit uint64) (aggregator.RunPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(aggregator.RunPage), args.Error(1)
}

// SubmitRound returns a nil broadcast when the first return value is nil
func (m *MockService) SubmitRound(ctx context.Context, runID string, contributions []fl.Contribution) (fl.Broadcast, error) {
	args := m.Called(ctx, runID, contributions)
	b, _ := args.Get(0).(fl.Broadcast)
	return b, args.Error(1)
}

func (m *MockService) GetResult(ctx context.Context, runID string) (fl.Result, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(fl.Result), args.Error(1)
}
