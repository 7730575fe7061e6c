package storagemock

import (
	"context"
	"time"

	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertSamples(ctx context.Context, samples []types.Sample) error {
	args := m.Called(ctx, samples)
	return args.Error(0)
}

func (m *MockDatabase) GetLatestSamples(ctx context.Context, limit int) ([]types.Sample, error) {
	args := m.Called(ctx, limit)
	if len(args) > 0 {
		return args.Get(0).([]types.Sample), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertBinned(ctx context.Context, rec types.BinnedRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDatabase) GetBinnedHistory(ctx context.Context, start, end time.Time) ([]types.BinnedRecord, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.BinnedRecord), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestBinTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(time.Time), args.Error(1)
	}
	return time.Time{}, nil
}

func (m *MockDatabase) CountBinned(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Int(0), args.Error(1)
	}
	return 0, nil
}

func (m *MockDatabase) GetCurve(ctx context.Context, signal types.Signal) (types.Curve, error) {
	args := m.Called(ctx, signal)
	if len(args) > 0 {
		return args.Get(0).(types.Curve), args.Error(1)
	}
	return types.Curve{}, nil
}

func (m *MockDatabase) SetCurve(ctx context.Context, signal types.Signal, curve types.Curve) error {
	args := m.Called(ctx, signal, curve)
	return args.Error(0)
}

func (m *MockDatabase) GetMetadata(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	if len(args) > 0 {
		return args.String(0), args.Error(1)
	}
	return "", nil
}

func (m *MockDatabase) SetMetadata(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
