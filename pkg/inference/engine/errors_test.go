package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderErrorClassification(t *testing.T) {
	auth := &ProviderError{Provider: "claude", StatusCode: 401, Type: "authentication_error", Message: "invalid x-api-key"}
	assert.True(t, auth.IsAuthentication())
	assert.False(t, auth.IsRateLimited())
	assert.Equal(t, "claude error, status 401 (authentication_error): invalid x-api-key", auth.Error())

	limited := &ProviderError{Provider: "openai", StatusCode: 429, Message: "slow down"}
	assert.True(t, limited.IsRateLimited())

	streamErr := &ProviderError{Provider: "claude", Type: "overloaded_error", Message: "Overloaded"}
	assert.Equal(t, "claude error (overloaded_error): Overloaded", streamErr.Error())
}

func TestAsProviderErrorThroughWrapping(t *testing.T) {
	pe := &ProviderError{Provider: "openai", StatusCode: 500, Message: "boom"}
	wrapped := errors.Wrap(pe, "run turn")

	found, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 500, found.StatusCode)

	_, ok = AsProviderError(errors.New("plain"))
	assert.False(t, ok)
}
