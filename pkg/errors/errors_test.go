package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(ErrManualDisconnect))
	assert.False(t, IsTransient(ErrReconnectBudget))
	assert.False(t, IsTransient(ErrNoQuotePath))
	assert.False(t, IsTransient(ErrPoolNotFound))
	assert.False(t, IsTransient(ErrUnsupportedChain))
	assert.False(t, IsTransient(ErrUnknownVenue))
	assert.False(t, IsTransient(ErrMissingTicker))

	assert.True(t, IsTransient(ErrNetwork))
	assert.True(t, IsTransient(ErrConnectTimeout))
	assert.True(t, IsTransient(ErrRateLimitExceeded))
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
}

func TestIsTransient_Wrapped(t *testing.T) {
	assert.False(t, IsTransient(fmt.Errorf("poll ethereum: %w", ErrNoQuotePath)))
	assert.True(t, IsTransient(fmt.Errorf("dial rpc: %w", ErrNetwork)))
}
