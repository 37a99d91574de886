package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRunReload_Success(t *testing.T) {
	client := new(mockClient)
	client.On("Reload", mock.Anything).Return(nil)

	var buf bytes.Buffer
	err := runReload(context.Background(), client, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Configuration reloaded successfully")
	client.AssertExpectations(t)
}

func TestRunReload_Failure(t *testing.T) {
	client := new(mockClient)
	client.On("Reload", mock.Anything).Return(errors.New("connection failed"))

	var buf bytes.Buffer
	err := runReload(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reload")
	assert.Contains(t, err.Error(), "connection failed")
	assert.Empty(t, buf.String())
	client.AssertExpectations(t)
}
