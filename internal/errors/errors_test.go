package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{ValidationError("bad input"), http.StatusBadRequest},
		{NotFoundError("missing"), http.StatusNotFound},
		{NotLinkedError("no counterpart"), http.StatusNotFound},
		{LinkMismatchError("asymmetric pair"), http.StatusConflict},
		{UpstreamError("helix down", fmt.Errorf("500")), http.StatusBadGateway},
		{InternalError("boom", fmt.Errorf("cause")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), "type %s", tt.err.Type)
	}
}

func TestAsStructuredError_WrapsPlainErrors(t *testing.T) {
	plain := fmt.Errorf("something broke")
	structured := AsStructuredError(plain)

	require.NotNil(t, structured)
	assert.Equal(t, TypeInternal, structured.Type)
	assert.ErrorIs(t, structured, plain)
}

func TestAsStructuredError_PassesThroughWrapped(t *testing.T) {
	inner := NotLinkedError("no counterpart")
	wrapped := fmt.Errorf("resolving pair: %w", inner)

	structured := AsStructuredError(wrapped)
	assert.Same(t, inner, structured)
}

func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(ValidationError("bad")))
	assert.True(t, IsUserFacing(NotFoundError("missing")))
	assert.True(t, IsUserFacing(NotLinkedError("solo")))
	assert.True(t, IsUserFacing(LinkMismatchError("broken")))
	assert.False(t, IsUserFacing(UpstreamError("down", nil)))
	assert.False(t, IsUserFacing(InternalError("boom", nil)))
	assert.False(t, IsUserFacing(fmt.Errorf("plain")))
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("missing").
		WithContext("platform", "twitch").
		WithContext("name", "forsen")

	resp := err.ToResponse()
	assert.Equal(t, "missing", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.Equal(t, "twitch", resp.Context["platform"])
	assert.Equal(t, "forsen", resp.Context["name"])
}
