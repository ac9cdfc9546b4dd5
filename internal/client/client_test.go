package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/aether/internal/config"
	"github.com/michaelbrown/aether/internal/sandbox/sandboxtest"
	"github.com/michaelbrown/aether/internal/server"
)

const testKey = "sk_test_client"

func newGateway(t *testing.T, p *sandboxtest.Provider) string {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{System: "AETHER v1.2", Location: "Test Node"},
		Auth:   config.AuthConfig{MasterKey: testKey},
		E2B:    config.E2BConfig{DefaultTimeout: 60, MaxTimeout: 3600},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	srv := server.New(cfg, p, nil, zerolog.Nop())
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return hs.URL
}

func TestHealth(t *testing.T) {
	c := New(newGateway(t, &sandboxtest.Provider{}), "")

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Health{Status: "ONLINE", System: "AETHER v1.2", Location: "Test Node"}, h)
}

func TestExecute(t *testing.T) {
	p := &sandboxtest.Provider{Stdout: []string{"2"}}
	c := New(newGateway(t, p)+"/", testKey)

	res, err := c.Execute(context.Background(), "print(1+1)", 0)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "2", res.Stdout)
	assert.Equal(t, "sbx-stub-1", res.SandboxID)
}

func TestExecute_FailureIsResult(t *testing.T) {
	p := &sandboxtest.Provider{RunErr: errors.New("connection reset")}
	c := New(newGateway(t, p), testKey)

	res, err := c.Execute(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "connection reset", res.Message)
}

func TestExecute_Unauthorized(t *testing.T) {
	c := New(newGateway(t, &sandboxtest.Provider{}), "wrong")

	_, err := c.Execute(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestExecute_ValidationError(t *testing.T) {
	c := New(newGateway(t, &sandboxtest.Provider{}), testKey)

	_, err := c.Execute(context.Background(), "x", -5)
	// omitempty drops zero, not negatives
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Detail, "timeout")
}

func TestStream(t *testing.T) {
	p := &sandboxtest.Provider{Stdout: []string{"a", "b"}, Stderr: []string{"e"}}
	c := New(newGateway(t, p), testKey)

	var frames []Frame
	res, err := c.Stream(context.Background(), "x", 5, func(f Frame) { frames = append(frames, f) })
	require.NoError(t, err)

	assert.Equal(t, []Frame{
		{Type: "stdout", Content: "a"},
		{Type: "stdout", Content: "b"},
		{Type: "stderr", Content: "e"},
	}, frames)
	assert.Equal(t, "a\nb", res.Stdout)
	assert.Equal(t, "e", res.Stderr)
	assert.True(t, res.OK())
}

func TestStream_Unauthorized(t *testing.T) {
	c := New(newGateway(t, &sandboxtest.Provider{}), "wrong")

	_, err := c.Stream(context.Background(), "x", 0, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
