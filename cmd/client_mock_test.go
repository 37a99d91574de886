package cmd

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockClient implements ClientInterface for command unit tests.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Status(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockClient) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
