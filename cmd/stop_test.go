package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRunStop_Success(t *testing.T) {
	client := new(mockClient)
	client.On("Shutdown", mock.Anything).Return(nil)

	var buf bytes.Buffer
	err := runStop(context.Background(), client, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Shutdown requested")
	client.AssertExpectations(t)
}

func TestRunStop_Failure(t *testing.T) {
	client := new(mockClient)
	client.On("Shutdown", mock.Anything).Return(errors.New("daemon not running"))

	var buf bytes.Buffer
	err := runStop(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop")
	assert.Empty(t, buf.String())
	client.AssertExpectations(t)
}
